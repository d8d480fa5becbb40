// Package http exposes the catalog and social operations over a chi
// router. Handlers translate HTTP in and out; all behavior lives in the
// service.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/beisanytime/shiurhub"
	"github.com/beisanytime/shiurhub/identity"
)

// PlaceholderThumbnail is served when a record has no thumbnail of its
// own.
const PlaceholderThumbnail = "/images/placeholder-shiur.png"

type Service interface {
	PrepareUpload(ctx context.Context, req shiurhub.UploadRequest) (shiurhub.Shiur, string, error)
	Get(ctx context.Context, id string) (shiurhub.Shiur, error)
	PlaybackURL(shiur shiurhub.Shiur) (string, error)
	ListByCategory(ctx context.Context, rabbi string) ([]shiurhub.ShiurSummary, error)
	ListAll(ctx context.Context) ([]shiurhub.ShiurSummary, error)
	Views(ctx context.Context, id string) (int, error)
	IncrementViews(ctx context.Context, id string) (int, error)
	Likes(ctx context.Context, id, email string) (int, bool, error)
	ToggleLike(ctx context.Context, id, email string) (int, bool, error)
	Comments(ctx context.Context, id string) ([]shiurhub.Comment, error)
	AddComment(ctx context.Context, id, email, text string) (shiurhub.Comment, error)
	DeleteComment(ctx context.Context, id, commentID string) error
	User(ctx context.Context, email string) (shiurhub.UserProfile, error)
	SetDisplayName(ctx context.Context, email, displayName string) error
	Ban(ctx context.Context, email string) error
}

// CORSConfig controls cross-origin access. Origins not in AllowedOrigins
// are denied; there is no implicit wildcard.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	CORS     CORSConfig
	Verifier *identity.Verifier
}

type Handler struct {
	config  HandlerConfig
	service Service
}

func NewHandler(config *HandlerConfig, service Service) *Handler {
	return &Handler{
		config:  *config,
		service: service,
	}
}

// Router assembles the API routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	corsCfg := h.config.CORS
	if len(corsCfg.AllowedMethods) == 0 {
		corsCfg.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(corsCfg.AllowedHeaders) == 0 {
		corsCfg.AllowedHeaders = []string{"Content-Type", "Authorization", "X-User-Email", "X-Admin-Key"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:    allowOriginFunc(corsCfg.AllowedOrigins),
		AllowedMethods:     corsCfg.AllowedMethods,
		AllowedHeaders:     corsCfg.AllowedHeaders,
		AllowCredentials:   corsCfg.AllowCredentials,
		MaxAge:             corsCfg.MaxAge,
		OptionsPassthrough: true,
	}))

	if h.config.Verifier != nil {
		r.Use(IdentityMiddleware(h.config.Verifier))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found")
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "shiurhub is running")
	})

	r.Route("/api", func(r chi.Router) {
		r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/prepare-upload", h.handlePrepareUpload)
		r.Get("/all-shiurim", h.handleListAll)
		r.Get("/shiurim/id/{id}", h.handleGetShiur)
		r.Get("/shiurim/{category}", h.handleListCategory)

		r.Post("/views/increment", h.handleIncrementViews)
		r.Get("/views/{id}", h.handleGetViews)

		r.Get("/likes/{id}", h.handleGetLikes)
		r.Post("/likes/{id}", h.handleToggleLike)

		r.Get("/comments/{id}", h.handleGetComments)
		r.Post("/comments/{id}", h.handleAddComment)
		r.Delete("/comments/{id}/{commentID}", h.handleDeleteComment)

		r.Get("/users/{email}", h.handleGetUser)
		r.Put("/users/{email}", h.handleSetDisplayName)

		r.Post("/ban", h.handleBan)
	})

	return r
}

// allowOriginFunc admits exactly the configured origins. A bare "*" entry
// opts back into wildcard access.
func allowOriginFunc(origins []string) func(r *http.Request, origin string) bool {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[o] = struct{}{}
	}
	return func(_ *http.Request, origin string) bool {
		if wildcard {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

type prepareUploadRequest struct {
	Title            string `json:"title"`
	Rabbi            string `json:"rabbi"`
	FileName         string `json:"fileName"`
	ThumbnailDataURL string `json:"thumbnailDataUrl"`
	Date             string `json:"date"`
}

func (h *Handler) handlePrepareUpload(w http.ResponseWriter, r *http.Request) {
	var req prepareUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Title == "" || req.Rabbi == "" || req.FileName == "" {
		WriteError(w, http.StatusBadRequest, "Title, Rabbi, and FileName are required.")
		return
	}

	_, signedURL, err := h.service.PrepareUpload(r.Context(), shiurhub.UploadRequest{
		Title:            req.Title,
		Rabbi:            req.Rabbi,
		FileName:         req.FileName,
		ThumbnailDataURL: req.ThumbnailDataURL,
		Date:             req.Date,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"signedUrl": signedURL})
}

func (h *Handler) handleListCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if !shiurhub.IsValidCategory(category) {
		WriteError(w, http.StatusBadRequest, "Invalid category")
		return
	}

	summaries, err := h.service.ListByCategory(r.Context(), category)
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, withThumbnails(summaries))
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListAll(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, withThumbnails(summaries))
}

// withThumbnails fills ThumbnailURL, falling back to the placeholder for
// records without one.
func withThumbnails(summaries []shiurhub.ShiurSummary) []shiurhub.ShiurSummary {
	out := make([]shiurhub.ShiurSummary, len(summaries))
	for i, s := range summaries {
		if s.ThumbnailDataURL != "" {
			s.ThumbnailURL = s.ThumbnailDataURL
		} else {
			s.ThumbnailURL = PlaceholderThumbnail
		}
		out[i] = s
	}
	return out
}

func (h *Handler) handleGetShiur(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !shiurhub.IsValidShiurID(id) {
		WriteError(w, http.StatusBadRequest, "Invalid id")
		return
	}

	shiur, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	playbackURL, err := h.service.PlaybackURL(shiur)
	if err != nil {
		HandleError(w, err)
		return
	}

	// The record's flattened JSON plus the presigned playback URL and the
	// resolved thumbnail.
	raw, err := json.Marshal(shiur)
	if err != nil {
		HandleError(w, err)
		return
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		HandleError(w, err)
		return
	}
	body["playbackUrl"] = playbackURL
	if shiur.ThumbnailDataURL != "" {
		body["thumbnailUrl"] = shiur.ThumbnailDataURL
	} else {
		body["thumbnailUrl"] = PlaceholderThumbnail
	}

	WriteJSON(w, http.StatusOK, body)
}

func (h *Handler) handleGetViews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	count, err := h.service.Views(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) handleIncrementViews(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ID == "" {
		WriteError(w, http.StatusBadRequest, "Missing id")
		return
	}

	count, err := h.service.IncrementViews(r.Context(), req.ID)
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

type likesResponse struct {
	Count     int  `json:"count"`
	UserLiked bool `json:"userLiked"`
}

func (h *Handler) handleGetLikes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	count, userLiked, err := h.service.Likes(r.Context(), id, EmailFromContext(r.Context()))
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, likesResponse{Count: count, UserLiked: userLiked})
}

func (h *Handler) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	email := EmailFromContext(r.Context())
	if email == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	count, userLiked, err := h.service.ToggleLike(r.Context(), id, email)
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, likesResponse{Count: count, UserLiked: userLiked})
}

func (h *Handler) handleGetComments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	comments, err := h.service.Comments(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string][]shiurhub.Comment{"comments": comments})
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	email := EmailFromContext(r.Context())
	if email == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Text == "" {
		WriteError(w, http.StatusBadRequest, "Empty comment")
		return
	}

	id := chi.URLParam(r, "id")
	comment, err := h.service.AddComment(r.Context(), id, email, req.Text)
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "comment": comment})
}

func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if !IsAdminFromContext(r.Context()) {
		WriteError(w, http.StatusForbidden, "Admin only")
		return
	}

	id := chi.URLParam(r, "id")
	commentID := chi.URLParam(r, "commentID")
	if err := h.service.DeleteComment(r.Context(), id, commentID); err != nil {
		HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	profile, err := h.service.User(r.Context(), email)
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleSetDisplayName(w http.ResponseWriter, r *http.Request) {
	caller := EmailFromContext(r.Context())
	if caller == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	target := chi.URLParam(r, "email")
	if caller != target && !IsAdminFromContext(r.Context()) {
		WriteError(w, http.StatusForbidden, "Permission denied")
		return
	}

	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.service.SetDisplayName(r.Context(), target, req.DisplayName); err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleBan(w http.ResponseWriter, r *http.Request) {
	if !IsAdminFromContext(r.Context()) {
		WriteError(w, http.StatusForbidden, "Admin only")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Email == "" {
		WriteError(w, http.StatusBadRequest, "Missing email")
		return
	}

	if err := h.service.Ban(r.Context(), req.Email); err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
