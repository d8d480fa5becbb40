package shiurhub_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beisanytime/shiurhub"
	"github.com/beisanytime/shiurhub/kv/memory"
)

type fakePresigner struct {
	err error
}

func (f *fakePresigner) PresignedURL(method, objectKey string, expires time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("https://store.example/%s?method=%s&expires=%d", objectKey, method, int(expires.Seconds())), nil
}

func newTestService(t *testing.T, opts ...shiurhub.ServiceOption) (*shiurhub.Service, shiurhub.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	base := []shiurhub.ServiceOption{
		shiurhub.WithServiceClock(func() time.Time {
			return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		}),
	}
	return shiurhub.NewService(store, &fakePresigner{}, append(base, opts...)...), store
}

func TestPrepareUpload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t, shiurhub.WithIDGenerator(func() string { return "fixed-id" }))

	shiur, signedURL, err := svc.PrepareUpload(ctx, shiurhub.UploadRequest{
		Title:    "Parsha Intro",
		Rabbi:    "guests",
		FileName: "a.mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, "fixed-id", shiur.ID)
	assert.Equal(t, "guests/fixed-id-a.mp4", shiur.ObjectKey)
	assert.Contains(t, signedURL, "guests/fixed-id-a.mp4")
	assert.Contains(t, signedURL, "method=PUT")

	got, err := svc.Get(ctx, "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, "Parsha Intro", got.Title)

	index, err := svc.ListByCategory(ctx, "guests")
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, "fixed-id", index[0].ID)
}

func TestPrepareUploadPrependsNewest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	n := 0
	svc, _ := newTestService(t, shiurhub.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))

	for _, title := range []string{"first", "second", "third"} {
		_, _, err := svc.PrepareUpload(ctx, shiurhub.UploadRequest{
			Title:    title,
			Rabbi:    "guests",
			FileName: "a.mp4",
		})
		require.NoError(t, err)
	}

	index, err := svc.ListByCategory(ctx, "guests")
	require.NoError(t, err)
	require.Len(t, index, 3)
	assert.Equal(t, "third", index[0].Title)
	assert.Equal(t, "first", index[2].Title)
}

func TestPrepareUploadValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		req  shiurhub.UploadRequest
	}{
		{"missing title", shiurhub.UploadRequest{Rabbi: "guests", FileName: "a.mp4"}},
		{"missing rabbi", shiurhub.UploadRequest{Title: "T", FileName: "a.mp4"}},
		{"missing file name", shiurhub.UploadRequest{Title: "T", Rabbi: "guests"}},
		{"bad rabbi", shiurhub.UploadRequest{Title: "T", Rabbi: "a/b", FileName: "a.mp4"}},
		{"bad file name", shiurhub.UploadRequest{Title: "T", Rabbi: "guests", FileName: "a/b.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := svc.PrepareUpload(ctx, tt.req)
			require.ErrorIs(t, err, shiurhub.ErrInvalidInput)
		})
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, shiurhub.ErrNotFound)
}

func TestGetCorrupted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store := newTestService(t)

	require.NoError(t, store.Put(ctx, shiurhub.RecordKeyPrefix+"bad", []byte(`{"id":"bad"}`)))

	_, err := svc.Get(ctx, "bad")
	require.ErrorIs(t, err, shiurhub.ErrCorrupted)
}

func TestListAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	n := 0
	svc, _ := newTestService(t, shiurhub.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))

	for _, rabbi := range []string{"guests", "rosenberg", "guests"} {
		_, _, err := svc.PrepareUpload(ctx, shiurhub.UploadRequest{
			Title:    "T",
			Rabbi:    rabbi,
			FileName: "a.mp4",
		})
		require.NoError(t, err)
	}

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t, shiurhub.WithIDGenerator(func() string { return "only" }))

	_, _, err := svc.PrepareUpload(ctx, shiurhub.UploadRequest{
		Title:    "T",
		Rabbi:    "guests",
		FileName: "a.mp4",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "only"))

	_, err = svc.Get(ctx, "only")
	require.ErrorIs(t, err, shiurhub.ErrNotFound)

	index, err := svc.ListByCategory(ctx, "guests")
	require.NoError(t, err)
	assert.Empty(t, index)
}

func TestReindexRepairsDivergence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	n := 0
	svc, store := newTestService(t, shiurhub.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))

	_, _, err := svc.PrepareUpload(ctx, shiurhub.UploadRequest{
		Title:    "kept",
		Rabbi:    "guests",
		FileName: "a.mp4",
	})
	require.NoError(t, err)

	// Simulate a crash that wiped the index and left an orphan index for a
	// category with no records.
	require.NoError(t, store.Delete(ctx, shiurhub.IndexKeyPrefix+"guests"))
	require.NoError(t, store.Put(ctx, shiurhub.IndexKeyPrefix+"ghost", []byte(`[{"id":"gone","title":"x","rabbi":"ghost"}]`)))

	count, err := svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	index, err := svc.ListByCategory(ctx, "guests")
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, "kept", index[0].Title)

	ghost, err := svc.ListByCategory(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, ghost)
}

func TestViews(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	count, err := svc.Views(ctx, "talk")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = svc.IncrementViews(ctx, "talk")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.IncrementViews(ctx, "talk")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = svc.Views(ctx, "talk")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestToggleLike(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	count, liked, err := svc.ToggleLike(ctx, "talk", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, liked)

	count, liked, err = svc.Likes(ctx, "talk", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, liked)

	count, liked, err = svc.Likes(ctx, "talk", "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, liked)

	count, liked, err = svc.ToggleLike(ctx, "talk", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, liked)
}

func TestToggleLikeRequiresIdentity(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, _, err := svc.ToggleLike(context.Background(), "talk", "")
	require.ErrorIs(t, err, shiurhub.ErrUnauthorized)
}

func TestComments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	comment, err := svc.AddComment(ctx, "talk", "a@example.com", "first!")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", comment.Email)
	assert.Equal(t, "a@example.com", comment.DisplayName)
	assert.Equal(t, "first!", comment.Text)

	comments, err := svc.Comments(ctx, "talk")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, comment.ID, comments[0].ID)
}

func TestAddCommentUsesDisplayName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	require.NoError(t, svc.SetDisplayName(ctx, "a@example.com", "Avi"))

	comment, err := svc.AddComment(ctx, "talk", "a@example.com", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Avi", comment.DisplayName)
}

func TestAddCommentTruncatesLongText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	long := make([]byte, shiurhub.MaxCommentLength+500)
	for i := range long {
		long[i] = 'x'
	}

	comment, err := svc.AddComment(ctx, "talk", "a@example.com", string(long))
	require.NoError(t, err)
	assert.Len(t, comment.Text, shiurhub.MaxCommentLength)
}

func TestAddCommentTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	// "א" is two bytes; the cap falls in the middle of it.
	text := strings.Repeat("x", shiurhub.MaxCommentLength-1) + "א"

	comment, err := svc.AddComment(ctx, "talk", "a@example.com", text)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(comment.Text))
	assert.Equal(t, strings.Repeat("x", shiurhub.MaxCommentLength-1), comment.Text)
}

func TestAddCommentBanned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	require.NoError(t, svc.Ban(ctx, "troll@example.com"))

	_, err := svc.AddComment(ctx, "talk", "troll@example.com", "spam")
	require.ErrorIs(t, err, shiurhub.ErrForbidden)

	comments, err := svc.Comments(ctx, "talk")
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestAddCommentRequiresIdentity(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.AddComment(context.Background(), "talk", "", "text")
	require.ErrorIs(t, err, shiurhub.ErrUnauthorized)
}

func TestDeleteComment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	first, err := svc.AddComment(ctx, "talk", "a@example.com", "one")
	require.NoError(t, err)
	_, err = svc.AddComment(ctx, "talk", "a@example.com", "two")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteComment(ctx, "talk", first.ID))

	comments, err := svc.Comments(ctx, "talk")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "two", comments[0].Text)
}

func TestSetDisplayNameTruncates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	long := make([]byte, shiurhub.MaxDisplayNameLength+20)
	for i := range long {
		long[i] = 'n'
	}
	require.NoError(t, svc.SetDisplayName(ctx, "a@example.com", string(long)))

	profile, err := svc.User(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Len(t, profile.DisplayName, shiurhub.MaxDisplayNameLength)
}

func TestSetDisplayNameTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	name := strings.Repeat("n", shiurhub.MaxDisplayNameLength-1) + "é"
	require.NoError(t, svc.SetDisplayName(ctx, "a@example.com", name))

	profile, err := svc.User(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(profile.DisplayName))
	assert.Equal(t, strings.Repeat("n", shiurhub.MaxDisplayNameLength-1), profile.DisplayName)
}

func TestUserUnknownIsEmptyProfile(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	profile, err := svc.User(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, profile.DisplayName)
}

func TestPlaybackURL(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	signedURL, err := svc.PlaybackURL(shiurhub.Shiur{ID: "x", ObjectKey: "guests/x-a.mp4"})
	require.NoError(t, err)
	assert.Contains(t, signedURL, "guests/x-a.mp4")
	assert.Contains(t, signedURL, "method=GET")
}
