package shiurhub

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// Shiur is the full metadata record for a single recording. ID, ObjectKey,
// Rabbi and UploadedAt are assigned at creation and never mutated. Extra
// carries any additional fields the uploader supplied; they are flattened
// into the JSON representation alongside the named fields.
type Shiur struct {
	ID               string
	Title            string
	Rabbi            string
	FileName         string
	ObjectKey        string
	UploadedAt       time.Time
	ThumbnailDataURL string
	Date             string
	Extra            map[string]any
}

// shiurFields are the JSON keys owned by the named Shiur fields. Extra keys
// colliding with these are dropped on unmarshal and overridden on marshal.
var shiurFields = map[string]struct{}{
	"id": {}, "title": {}, "rabbi": {}, "fileName": {}, "objectKey": {},
	"uploadedAt": {}, "thumbnailDataUrl": {}, "date": {},
}

func (s Shiur) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Extra)+8)
	for k, v := range s.Extra {
		if _, owned := shiurFields[k]; !owned {
			m[k] = v
		}
	}
	m["id"] = s.ID
	m["title"] = s.Title
	m["rabbi"] = s.Rabbi
	m["fileName"] = s.FileName
	m["objectKey"] = s.ObjectKey
	m["uploadedAt"] = s.UploadedAt.UTC().Format(time.RFC3339)
	if s.ThumbnailDataURL != "" {
		m["thumbnailDataUrl"] = s.ThumbnailDataURL
	}
	if s.Date != "" {
		m["date"] = s.Date
	}
	return json.Marshal(m)
}

func (s *Shiur) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	str := func(key string) string {
		v, _ := m[key].(string)
		return v
	}
	s.ID = str("id")
	s.Title = str("title")
	s.Rabbi = str("rabbi")
	s.FileName = str("fileName")
	s.ObjectKey = str("objectKey")
	s.ThumbnailDataURL = str("thumbnailDataUrl")
	s.Date = str("date")
	if raw := str("uploadedAt"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("unmarshal shiur: parse uploadedAt: %w", err)
		}
		s.UploadedAt = t
	}
	s.Extra = nil
	for k, v := range m {
		if _, owned := shiurFields[k]; owned {
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[k] = v
	}
	return nil
}

// Summary returns the denormalized entry stored in the category index.
func (s Shiur) Summary() ShiurSummary {
	return ShiurSummary{
		ID:               s.ID,
		Title:            s.Title,
		Date:             s.Date,
		Rabbi:            s.Rabbi,
		ThumbnailDataURL: s.ThumbnailDataURL,
	}
}

// ShiurSummary is the subset of Shiur fields held in a category index.
// Callers needing live values beyond these must refetch the full record.
type ShiurSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Date             string `json:"date,omitempty"`
	Rabbi            string `json:"rabbi"`
	ThumbnailDataURL string `json:"thumbnailDataUrl,omitempty"`
	ThumbnailURL     string `json:"thumbnailUrl,omitempty"`
}

// Comment is a single comment on a shiur. ID is a time+random composite so
// concurrent writers on different invocations cannot collide in practice.
type Comment struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}

type commentList struct {
	Comments []Comment `json:"comments"`
}

type likeSet struct {
	Users []string `json:"users"`
}

// UserProfile holds per-user display settings keyed by email.
type UserProfile struct {
	DisplayName string `json:"displayName,omitempty"`
}

const (
	// MaxCommentLength caps comment text; longer input is truncated.
	MaxCommentLength = 2000
	// MaxDisplayNameLength caps user display names; longer input is truncated.
	MaxDisplayNameLength = 80
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewCommentID returns a time+random composite id, e.g. "1735689600000-k3f9a2c".
func NewCommentID(now time.Time) string {
	b := make([]byte, 7)
	max := big.NewInt(int64(len(base36)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failure is unrecoverable
			panic(fmt.Sprintf("comment id: %v", err))
		}
		b[i] = base36[n.Int64()]
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), string(b))
}
