package shiurhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Presigner hands out time-limited URLs authorizing direct object-store
// transfers. Implemented by objectstore.Gateway.
type Presigner interface {
	PresignedURL(method, objectKey string, expires time.Duration) (string, error)
}

// Service implements the catalog and social operations over a Store and a
// Presigner. Both are injected at construction; nothing in this package
// reaches for ambient globals, which keeps the service unit-testable with
// fake stores.
type Service struct {
	kv           Store
	presign      Presigner
	uploadExpiry time.Duration
	now          func() time.Time
	newID        func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithUploadExpiry sets the validity window of presigned upload and
// playback URLs (default 1h).
func WithUploadExpiry(d time.Duration) ServiceOption {
	return func(s *Service) { s.uploadExpiry = d }
}

// WithServiceClock overrides the time source. Used in tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides record id assignment. Used in tests.
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

func NewService(kv Store, presign Presigner, opts ...ServiceOption) *Service {
	s := &Service{
		kv:           kv,
		presign:      presign,
		uploadExpiry: time.Hour,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadRequest carries the caller-supplied fields for a new recording.
type UploadRequest struct {
	Title            string
	Rabbi            string
	FileName         string
	ThumbnailDataURL string
	Date             string
	Extra            map[string]any
}

// PrepareUpload creates the metadata record and its category index entry,
// then returns a presigned PUT URL for the client to upload the bytes
// directly. The record and index writes target independent keys and are
// issued concurrently; the pair is not atomic. A crash between them leaves
// the record authoritative and Reindex repairs the index.
func (s *Service) PrepareUpload(ctx context.Context, req UploadRequest) (Shiur, string, error) {
	if err := ctx.Err(); err != nil {
		return Shiur{}, "", fmt.Errorf("prepare upload: %w", err)
	}

	if req.Title == "" || req.Rabbi == "" || req.FileName == "" {
		return Shiur{}, "", fmt.Errorf("prepare upload: title, rabbi and fileName are required: %w", ErrInvalidInput)
	}
	if !IsValidCategory(req.Rabbi) {
		return Shiur{}, "", fmt.Errorf("prepare upload: invalid rabbi %q: %w", req.Rabbi, ErrInvalidInput)
	}
	if !IsValidFileName(req.FileName) {
		return Shiur{}, "", fmt.Errorf("prepare upload: invalid fileName %q: %w", req.FileName, ErrInvalidInput)
	}

	id := s.newID()
	shiur := Shiur{
		ID:               id,
		Title:            req.Title,
		Rabbi:            req.Rabbi,
		FileName:         req.FileName,
		ObjectKey:        fmt.Sprintf("%s/%s-%s", req.Rabbi, id, req.FileName),
		UploadedAt:       s.now().UTC(),
		ThumbnailDataURL: req.ThumbnailDataURL,
		Date:             req.Date,
		Extra:            req.Extra,
	}

	record, err := json.Marshal(shiur)
	if err != nil {
		return Shiur{}, "", fmt.Errorf("prepare upload: marshal record: %w", err)
	}

	index, err := s.loadIndex(ctx, req.Rabbi)
	if err != nil {
		return Shiur{}, "", fmt.Errorf("prepare upload: %w", err)
	}
	index = append([]ShiurSummary{shiur.Summary()}, index...)
	indexData, err := json.Marshal(index)
	if err != nil {
		return Shiur{}, "", fmt.Errorf("prepare upload: marshal index: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.kv.Put(gctx, recordKey(id), record) })
	g.Go(func() error { return s.kv.Put(gctx, indexKey(req.Rabbi), indexData) })
	if err := g.Wait(); err != nil {
		return Shiur{}, "", fmt.Errorf("prepare upload: %w", err)
	}

	signedURL, err := s.presign.PresignedURL("PUT", shiur.ObjectKey, s.uploadExpiry)
	if err != nil {
		return Shiur{}, "", fmt.Errorf("prepare upload: %w", err)
	}

	return shiur, signedURL, nil
}

// Get returns the full record for id. Records missing their required
// fields are reported as corrupted rather than served.
func (s *Service) Get(ctx context.Context, id string) (Shiur, error) {
	data, err := s.kv.Get(ctx, recordKey(id))
	if err != nil {
		return Shiur{}, fmt.Errorf("get shiur %s: %w", id, err)
	}

	var shiur Shiur
	if err := json.Unmarshal(data, &shiur); err != nil {
		return Shiur{}, fmt.Errorf("get shiur %s: %w: %w", id, err, ErrCorrupted)
	}
	if shiur.Rabbi == "" || shiur.ObjectKey == "" || shiur.Title == "" {
		return Shiur{}, fmt.Errorf("get shiur %s: missing required fields: %w", id, ErrCorrupted)
	}
	return shiur, nil
}

// PlaybackURL returns a presigned GET URL for the record's object.
func (s *Service) PlaybackURL(shiur Shiur) (string, error) {
	signedURL, err := s.presign.PresignedURL("GET", shiur.ObjectKey, s.uploadExpiry)
	if err != nil {
		return "", fmt.Errorf("playback url for %s: %w", shiur.ID, err)
	}
	return signedURL, nil
}

// ListByCategory returns the category index verbatim, newest first. An
// unknown category yields an empty list, not an error.
func (s *Service) ListByCategory(ctx context.Context, rabbi string) ([]ShiurSummary, error) {
	index, err := s.loadIndex(ctx, rabbi)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rabbi, err)
	}
	return index, nil
}

// ListAll concatenates every category index. Cost scales with the number
// of categories: one KV read per index regardless of its length.
func (s *Service) ListAll(ctx context.Context) ([]ShiurSummary, error) {
	all := []ShiurSummary{}
	cursor := ""
	for {
		page, err := s.kv.ListKeys(ctx, IndexKeyPrefix, 1000, cursor)
		if err != nil {
			return nil, fmt.Errorf("list all: %w", err)
		}
		for _, key := range page.Keys {
			index, err := s.loadIndex(ctx, strings.TrimPrefix(key, IndexKeyPrefix))
			if err != nil {
				return nil, fmt.Errorf("list all: %w", err)
			}
			all = append(all, index...)
		}
		if page.Cursor == "" {
			return all, nil
		}
		cursor = page.Cursor
	}
}

// Delete removes the full record and its category index entry. Like
// creation, the two writes are not atomic.
func (s *Service) Delete(ctx context.Context, id string) error {
	shiur, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrCorrupted) {
		return fmt.Errorf("delete shiur: %w", err)
	}

	if err := s.kv.Delete(ctx, recordKey(id)); err != nil {
		return fmt.Errorf("delete shiur %s: %w", id, err)
	}
	if shiur.Rabbi == "" {
		// Corrupted record with no category: nothing to unindex.
		return nil
	}

	index, err := s.loadIndex(ctx, shiur.Rabbi)
	if err != nil {
		return fmt.Errorf("delete shiur %s: %w", id, err)
	}
	kept := index[:0]
	for _, entry := range index {
		if entry.ID != id {
			kept = append(kept, entry)
		}
	}
	data, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("delete shiur %s: marshal index: %w", id, err)
	}
	if err := s.kv.Put(ctx, indexKey(shiur.Rabbi), data); err != nil {
		return fmt.Errorf("delete shiur %s: %w", id, err)
	}
	return nil
}

// Reindex rebuilds every category index from the full records, repairing
// any divergence left behind by the non-atomic dual writes. It returns the
// number of records indexed.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	byRabbi := make(map[string][]Shiur)
	cursor := ""
	total := 0
	for {
		page, err := s.kv.ListKeys(ctx, RecordKeyPrefix, 1000, cursor)
		if err != nil {
			return 0, fmt.Errorf("reindex: %w", err)
		}
		for _, key := range page.Keys {
			data, err := s.kv.Get(ctx, key)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return 0, fmt.Errorf("reindex: %w", err)
			}
			var shiur Shiur
			if err := json.Unmarshal(data, &shiur); err != nil || shiur.Rabbi == "" {
				// Unparseable records cannot be indexed; leave them for
				// manual inspection.
				continue
			}
			byRabbi[shiur.Rabbi] = append(byRabbi[shiur.Rabbi], shiur)
			total++
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	stale, err := s.listIndexCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}

	for rabbi, shiurim := range byRabbi {
		sort.Slice(shiurim, func(i, j int) bool {
			return shiurim[i].UploadedAt.After(shiurim[j].UploadedAt)
		})
		index := make([]ShiurSummary, len(shiurim))
		for i, shiur := range shiurim {
			index[i] = shiur.Summary()
		}
		data, err := json.Marshal(index)
		if err != nil {
			return 0, fmt.Errorf("reindex %s: %w", rabbi, err)
		}
		if err := s.kv.Put(ctx, indexKey(rabbi), data); err != nil {
			return 0, fmt.Errorf("reindex %s: %w", rabbi, err)
		}
		delete(stale, rabbi)
	}

	for rabbi := range stale {
		if err := s.kv.Delete(ctx, indexKey(rabbi)); err != nil {
			return 0, fmt.Errorf("reindex: drop %s: %w", rabbi, err)
		}
	}

	return total, nil
}

func (s *Service) listIndexCategories(ctx context.Context) (map[string]struct{}, error) {
	categories := make(map[string]struct{})
	cursor := ""
	for {
		page, err := s.kv.ListKeys(ctx, IndexKeyPrefix, 1000, cursor)
		if err != nil {
			return nil, err
		}
		for _, key := range page.Keys {
			categories[strings.TrimPrefix(key, IndexKeyPrefix)] = struct{}{}
		}
		if page.Cursor == "" {
			return categories, nil
		}
		cursor = page.Cursor
	}
}

func (s *Service) loadIndex(ctx context.Context, rabbi string) ([]ShiurSummary, error) {
	data, err := s.kv.Get(ctx, indexKey(rabbi))
	if errors.Is(err, ErrNotFound) {
		return []ShiurSummary{}, nil
	}
	if err != nil {
		return nil, err
	}
	var index []ShiurSummary
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("index %s: %w", rabbi, err)
	}
	return index, nil
}

// Views returns the view counter for id; unknown ids count zero.
func (s *Service) Views(ctx context.Context, id string) (int, error) {
	data, err := s.kv.Get(ctx, viewsKey(id))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("views %s: %w", id, err)
	}
	count, _ := strconv.Atoi(string(data))
	return count, nil
}

// IncrementViews bumps the view counter by one. The read-modify-write is
// best effort: concurrent increments may lose updates, and the counter is
// monotonic but possibly duplicated under retries.
func (s *Service) IncrementViews(ctx context.Context, id string) (int, error) {
	count, err := s.Views(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	count++
	if err := s.kv.Put(ctx, viewsKey(id), []byte(strconv.Itoa(count))); err != nil {
		return 0, fmt.Errorf("increment views %s: %w", id, err)
	}
	return count, nil
}

// Likes returns the like count and whether email is among the likers.
func (s *Service) Likes(ctx context.Context, id, email string) (count int, userLiked bool, err error) {
	set, err := s.loadLikes(ctx, id)
	if err != nil {
		return 0, false, fmt.Errorf("likes %s: %w", id, err)
	}
	return len(set.Users), email != "" && contains(set.Users, email), nil
}

// ToggleLike flips email's membership in the like set. Toggling twice
// restores the original state, which makes retried toggles self-correcting.
func (s *Service) ToggleLike(ctx context.Context, id, email string) (count int, userLiked bool, err error) {
	if email == "" {
		return 0, false, fmt.Errorf("toggle like: %w", ErrUnauthorized)
	}

	set, err := s.loadLikes(ctx, id)
	if err != nil {
		return 0, false, fmt.Errorf("toggle like %s: %w", id, err)
	}

	if contains(set.Users, email) {
		kept := set.Users[:0]
		for _, u := range set.Users {
			if u != email {
				kept = append(kept, u)
			}
		}
		set.Users = kept
		userLiked = false
	} else {
		set.Users = append(set.Users, email)
		userLiked = true
	}

	data, err := json.Marshal(set)
	if err != nil {
		return 0, false, fmt.Errorf("toggle like %s: %w", id, err)
	}
	if err := s.kv.Put(ctx, likesKey(id), data); err != nil {
		return 0, false, fmt.Errorf("toggle like %s: %w", id, err)
	}
	return len(set.Users), userLiked, nil
}

func (s *Service) loadLikes(ctx context.Context, id string) (likeSet, error) {
	data, err := s.kv.Get(ctx, likesKey(id))
	if errors.Is(err, ErrNotFound) {
		return likeSet{Users: []string{}}, nil
	}
	if err != nil {
		return likeSet{}, err
	}
	var set likeSet
	if err := json.Unmarshal(data, &set); err != nil {
		return likeSet{}, err
	}
	if set.Users == nil {
		set.Users = []string{}
	}
	return set, nil
}

// Comments returns the comment list for id, newest first.
func (s *Service) Comments(ctx context.Context, id string) ([]Comment, error) {
	list, err := s.loadComments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("comments %s: %w", id, err)
	}
	comments := append([]Comment(nil), list.Comments...)
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	return comments, nil
}

// AddComment appends a comment by email. Banned users are rejected and the
// list is left untouched. Text is capped at MaxCommentLength.
func (s *Service) AddComment(ctx context.Context, id, email, text string) (Comment, error) {
	if email == "" {
		return Comment{}, fmt.Errorf("add comment: %w", ErrUnauthorized)
	}

	banned, err := s.IsBanned(ctx, email)
	if err != nil {
		return Comment{}, fmt.Errorf("add comment: %w", err)
	}
	if banned {
		return Comment{}, fmt.Errorf("add comment: %s is banned from commenting: %w", email, ErrForbidden)
	}

	text = truncate(text, MaxCommentLength)
	if text == "" {
		return Comment{}, fmt.Errorf("add comment: empty comment: %w", ErrInvalidInput)
	}

	profile, err := s.User(ctx, email)
	if err != nil {
		return Comment{}, fmt.Errorf("add comment: %w", err)
	}
	displayName := profile.DisplayName
	if displayName == "" {
		displayName = email
	}

	now := s.now().UTC()
	comment := Comment{
		ID:          NewCommentID(now),
		Email:       email,
		DisplayName: displayName,
		Text:        text,
		CreatedAt:   now,
	}

	list, err := s.loadComments(ctx, id)
	if err != nil {
		return Comment{}, fmt.Errorf("add comment %s: %w", id, err)
	}
	list.Comments = append(list.Comments, comment)
	if err := s.saveComments(ctx, id, list); err != nil {
		return Comment{}, fmt.Errorf("add comment %s: %w", id, err)
	}
	return comment, nil
}

// DeleteComment removes commentID from id's list. Authorization is the
// caller's responsibility; only admins may reach this.
func (s *Service) DeleteComment(ctx context.Context, id, commentID string) error {
	list, err := s.loadComments(ctx, id)
	if err != nil {
		return fmt.Errorf("delete comment %s: %w", id, err)
	}
	kept := list.Comments[:0]
	for _, c := range list.Comments {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	list.Comments = kept
	if err := s.saveComments(ctx, id, list); err != nil {
		return fmt.Errorf("delete comment %s: %w", id, err)
	}
	return nil
}

func (s *Service) loadComments(ctx context.Context, id string) (commentList, error) {
	data, err := s.kv.Get(ctx, commentsKey(id))
	if errors.Is(err, ErrNotFound) {
		return commentList{Comments: []Comment{}}, nil
	}
	if err != nil {
		return commentList{}, err
	}
	var list commentList
	if err := json.Unmarshal(data, &list); err != nil {
		return commentList{}, err
	}
	if list.Comments == nil {
		list.Comments = []Comment{}
	}
	return list, nil
}

func (s *Service) saveComments(ctx context.Context, id string, list commentList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, commentsKey(id), data)
}

// User returns the profile for email; unknown users get a zero profile.
func (s *Service) User(ctx context.Context, email string) (UserProfile, error) {
	data, err := s.kv.Get(ctx, userKey(email))
	if errors.Is(err, ErrNotFound) {
		return UserProfile{}, nil
	}
	if err != nil {
		return UserProfile{}, fmt.Errorf("user %s: %w", email, err)
	}
	var profile UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return UserProfile{}, fmt.Errorf("user %s: %w", email, err)
	}
	return profile, nil
}

// SetDisplayName stores a display name for email, capped at
// MaxDisplayNameLength.
func (s *Service) SetDisplayName(ctx context.Context, email, displayName string) error {
	displayName = truncate(displayName, MaxDisplayNameLength)

	profile, err := s.User(ctx, email)
	if err != nil {
		return fmt.Errorf("set display name: %w", err)
	}
	profile.DisplayName = displayName

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("set display name %s: %w", email, err)
	}
	if err := s.kv.Put(ctx, userKey(email), data); err != nil {
		return fmt.Errorf("set display name %s: %w", email, err)
	}
	return nil
}

// Ban marks email as banned from commenting.
func (s *Service) Ban(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("ban: missing email: %w", ErrInvalidInput)
	}
	if err := s.kv.Put(ctx, banKey(email), []byte("1")); err != nil {
		return fmt.Errorf("ban %s: %w", email, err)
	}
	return nil
}

// IsBanned reports whether email is banned.
func (s *Service) IsBanned(ctx context.Context, email string) (bool, error) {
	_, err := s.kv.Get(ctx, banKey(email))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// truncate caps s at max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
