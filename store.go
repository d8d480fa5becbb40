package shiurhub

import "context"

// Store is the key-value abstraction backing the catalog. Implementations
// must be safe for concurrent use and must return ErrNotFound from Get for
// absent keys. Delete of an absent key is a no-op.
//
// Key layout used by Service:
//
//	shiur:<id>       full Shiur record (JSON)
//	index_<rabbi>    []ShiurSummary, newest first (JSON)
//	views:<id>       ASCII integer
//	likes:<id>       {"users":[...]} (JSON)
//	comments:<id>    {"comments":[...]} (JSON)
//	user:<email>     UserProfile (JSON)
//	ban:<email>      "1" when banned
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// ListKeys returns up to limit keys with the given prefix in ascending
	// order, resuming after the opaque cursor. An empty returned cursor
	// means the scan is complete.
	ListKeys(ctx context.Context, prefix string, limit int, cursor string) (KeyPage, error)

	Close() error
}

// KeyPage is one page of a key scan.
type KeyPage struct {
	Keys   []string
	Cursor string
}

// Key prefixes for the namespaces sharing one Store.
const (
	RecordKeyPrefix  = "shiur:"
	IndexKeyPrefix   = "index_"
	ViewsKeyPrefix   = "views:"
	LikesKeyPrefix   = "likes:"
	CommentKeyPrefix = "comments:"
	UserKeyPrefix    = "user:"
	BanKeyPrefix     = "ban:"
)

func recordKey(id string) string   { return RecordKeyPrefix + id }
func indexKey(rabbi string) string { return IndexKeyPrefix + rabbi }
func viewsKey(id string) string    { return ViewsKeyPrefix + id }
func likesKey(id string) string    { return LikesKeyPrefix + id }
func commentsKey(id string) string { return CommentKeyPrefix + id }
func userKey(email string) string  { return UserKeyPrefix + email }
func banKey(email string) string   { return BanKeyPrefix + email }
