package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/beisanytime/shiurhub"
)

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	svc.On("ListAll", mock.Anything).Return([]shiurhub.ShiurSummary{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/all-shiurim", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	svc.On("ListAll", mock.Anything).Return([]shiurhub.ShiurSummary{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/all-shiurim", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightReturnsNoContent(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	req := httptest.NewRequest(http.MethodOptions, "/api/likes/talk", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIdentityMiddlewareRejectsBadToken(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	req := httptest.NewRequest(http.MethodGet, "/api/all-shiurim", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityMiddlewarePassesEmailThrough(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	svc.On("Likes", mock.Anything, "talk", "a@example.com").Return(2, true, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/likes/talk", nil)
	req.Header.Set("X-User-Email", "a@example.com")
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}
