package shiurhub_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beisanytime/shiurhub"
)

func TestShiurJSONRoundTrip(t *testing.T) {
	t.Parallel()

	shiur := shiurhub.Shiur{
		ID:               "abc-123",
		Title:            "Parsha Intro",
		Rabbi:            "guests",
		FileName:         "a.mp4",
		ObjectKey:        "guests/abc-123-a.mp4",
		UploadedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ThumbnailDataURL: "data:image/png;base64,xyz",
		Date:             "2026-01-02",
		Extra:            map[string]any{"series": "bereishis"},
	}

	data, err := json.Marshal(shiur)
	require.NoError(t, err)

	var decoded shiurhub.Shiur
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, shiur, decoded)
}

func TestShiurExtraCannotShadowOwnedFields(t *testing.T) {
	t.Parallel()

	shiur := shiurhub.Shiur{
		ID:    "real-id",
		Title: "Title",
		Rabbi: "rabbi",
		Extra: map[string]any{"id": "fake-id", "custom": "kept"},
	}

	data, err := json.Marshal(shiur)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "real-id", m["id"])
	assert.Equal(t, "kept", m["custom"])
}

func TestShiurUnmarshalKeepsUnknownFields(t *testing.T) {
	t.Parallel()

	raw := `{"id":"x","title":"T","rabbi":"r","uploadedAt":"2026-01-02T03:04:05Z","series":"bereishis","part":3}`

	var shiur shiurhub.Shiur
	require.NoError(t, json.Unmarshal([]byte(raw), &shiur))

	assert.Equal(t, "x", shiur.ID)
	assert.Equal(t, "bereishis", shiur.Extra["series"])
	assert.Equal(t, float64(3), shiur.Extra["part"])
}

func TestSummary(t *testing.T) {
	t.Parallel()

	shiur := shiurhub.Shiur{
		ID:               "abc",
		Title:            "Parsha Intro",
		Rabbi:            "guests",
		Date:             "2026-01-02",
		ThumbnailDataURL: "data:thumb",
		ObjectKey:        "guests/abc-a.mp4",
	}

	summary := shiur.Summary()
	assert.Equal(t, "abc", summary.ID)
	assert.Equal(t, "Parsha Intro", summary.Title)
	assert.Equal(t, "guests", summary.Rabbi)
	assert.Equal(t, "2026-01-02", summary.Date)
	assert.Equal(t, "data:thumb", summary.ThumbnailDataURL)
}

func TestNewCommentID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := shiurhub.NewCommentID(now)

	parts := strings.SplitN(id, "-", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "1767323045000", parts[0])
	assert.Len(t, parts[1], 7)

	other := shiurhub.NewCommentID(now)
	assert.NotEqual(t, id, other)
}
