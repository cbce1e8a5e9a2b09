package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk/internal/auth"
	"helpdesk/internal/domain"
	"helpdesk/internal/ratelimit"
	"helpdesk/internal/repository/sqlite"
	"helpdesk/internal/service"
)

func newTestRouter(t *testing.T, limiterMax int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "helpdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	userRepo := sqlite.NewUserRepository(db)
	ticketRepo := sqlite.NewTicketRepository(db)
	commentRepo := sqlite.NewCommentRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, ticketRepo.Init(ctx))
	require.NoError(t, commentRepo.Init(ctx))

	userService := service.NewUserService(userRepo)
	ticketService := service.NewTicketService(ticketRepo, commentRepo)
	require.NoError(t, userService.EnsureUser(ctx, "admin", "admin@helpdesk.com", "admin123", domain.RoleAdmin))

	tokenService := auth.NewTokenService("test-secret", 24*time.Hour)
	limiter := ratelimit.NewLimiter(15*time.Minute, limiterMax)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	router := gin.New()
	router.Use(gin.Recovery())
	handler := NewHandler(userService, ticketService, tokenService, limiter, logger, false)
	handler.RegisterRoutes(router, "http://localhost:4028")
	return router
}

func doRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func registerUser(t *testing.T, router *gin.Engine, username, email, password string) string {
	t.Helper()
	rec := doRequest(router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, 20)

	rec := doRequest(router, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decodeBody(t, rec)["status"])
}

func TestRegisterAndLogin(t *testing.T) {
	router := newTestRouter(t, 20)

	rec := doRequest(router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "password_hash")

	rec = doRequest(router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "password1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["token"])
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	router := newTestRouter(t, 20)
	registerUser(t, router, "alice", "alice@x.com", "password1")

	wrongPassword := doRequest(router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "not-the-password",
	})
	unknownUser := doRequest(router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "nobody",
		"password": "password1",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
}

func TestRegisterValidationErrorList(t *testing.T) {
	router := newTestRouter(t, 20)

	rec := doRequest(router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "ab",
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errs := decodeBody(t, rec)["errors"].([]any)
	assert.Len(t, errs, 3, "all field failures are reported together")
}

func TestRegisterDuplicate(t *testing.T) {
	router := newTestRouter(t, 20)
	registerUser(t, router, "alice", "alice@x.com", "password1")

	rec := doRequest(router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "alice",
		"email":    "other@x.com",
		"password": "password1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username or email already exists", decodeBody(t, rec)["error"])
}

func TestVerifyToken(t *testing.T) {
	router := newTestRouter(t, 20)
	token := registerUser(t, router, "alice", "alice@x.com", "password1")

	rec := doRequest(router, http.MethodGet, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])

	rec = doRequest(router, http.MethodGet, "/api/auth/verify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/auth/verify", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, 20)

	rec := doRequest(router, http.MethodGet, "/api/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/tickets", "not-a-token", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTicketLifecycle(t *testing.T) {
	router := newTestRouter(t, 20)
	token := registerUser(t, router, "alice", "alice@x.com", "password1")

	// missing description
	rec := doRequest(router, http.MethodPost, "/api/tickets", token, gin.H{"title": "T1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/tickets", token, gin.H{
		"title":       "T1",
		"description": "D1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "open", created["status"])
	assert.Equal(t, "medium", created["priority"])
	ticketID := int64(created["id"].(float64))
	ticketPath := fmt.Sprintf("/api/tickets/%d", ticketID)

	rec = doRequest(router, http.MethodPost, ticketPath+"/comments", token, gin.H{"content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(router, http.MethodPost, ticketPath+"/comments", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, ticketPath, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ticket := decodeBody(t, rec)
	assert.Equal(t, "alice", ticket["created_by_username"])
	comments := ticket["comments"].([]any)
	require.Len(t, comments, 1)
	assert.Equal(t, "hi", comments[0].(map[string]any)["content"])
	assert.Equal(t, "alice", comments[0].(map[string]any)["author_username"])

	rec = doRequest(router, http.MethodPut, ticketPath, token, gin.H{"status": "in_progress"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodPut, ticketPath, token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPut, "/api/tickets/99999", token, gin.H{"status": "closed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodDelete, ticketPath, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, ticketPath, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketListFilterAndPagination(t *testing.T) {
	router := newTestRouter(t, 20)
	token := registerUser(t, router, "alice", "alice@x.com", "password1")

	for i := 0; i < 7; i++ {
		rec := doRequest(router, http.MethodPost, "/api/tickets", token, gin.H{
			"title":       fmt.Sprintf("T%d", i),
			"description": "D",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(router, http.MethodGet, "/api/tickets?status=open&page=2&limit=5", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	tickets := body["tickets"].([]any)
	assert.Len(t, tickets, 2)
	for _, item := range tickets {
		assert.Equal(t, "open", item.(map[string]any)["status"])
	}
	pagination := body["pagination"].(map[string]any)
	assert.Equal(t, float64(2), pagination["page"])
	assert.Equal(t, float64(5), pagination["limit"])
	assert.Equal(t, float64(7), pagination["total"])
	assert.Equal(t, float64(2), pagination["pages"])
}

func TestUserListingIsAdminOnly(t *testing.T) {
	router := newTestRouter(t, 20)
	userToken := registerUser(t, router, "alice", "alice@x.com", "password1")

	rec := doRequest(router, http.MethodGet, "/api/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	login := doRequest(router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "admin",
		"password": "admin123",
	})
	require.Equal(t, http.StatusOK, login.Code)
	adminToken := decodeBody(t, login)["token"].(string)

	rec = doRequest(router, http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeBody(t, rec)["users"].([]any)
	assert.Len(t, users, 2)

	rec = doRequest(router, http.MethodGet, "/api/users?role=admin", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	admins := decodeBody(t, rec)["users"].([]any)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin", admins[0].(map[string]any)["username"])
}

func TestAuthRateLimit(t *testing.T) {
	router := newTestRouter(t, 3)

	for i := 0; i < 3; i++ {
		rec := doRequest(router, http.MethodPost, "/api/auth/login", "", gin.H{
			"username": "alice",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := doRequest(router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
