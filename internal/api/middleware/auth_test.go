package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ec-order-sync/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeVerifier struct {
	answers map[string]identity.Verification
	err     error
	seen    []string
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (identity.Verification, error) {
	f.seen = append(f.seen, token)
	if f.err != nil {
		return identity.Verification{}, f.err
	}
	return f.answers[token], nil
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{answers: map[string]identity.Verification{
		"user-token":  {Valid: true, UserID: "user-123", Role: "user", Name: "alice"},
		"admin-token": {Valid: true, UserID: "admin-1", Role: "admin", Name: "root"},
	}}
}

func captureIdentity(captured *identity.Verification) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v, ok := GetIdentity(r.Context()); ok {
			*captured = v
		}
		w.WriteHeader(http.StatusOK)
	})
}

// ============================================
// VerifyMiddleware Tests
// ============================================

func TestVerifyMiddleware_ValidToken_Header(t *testing.T) {
	verifier := newFakeVerifier()
	var captured identity.Verification

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rec := httptest.NewRecorder()

	VerifyMiddleware(verifier, nil)(captureIdentity(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-123", captured.UserID)
	assert.Equal(t, "user", captured.Role)
	assert.Equal(t, "alice", captured.Name)
}

func TestVerifyMiddleware_ValidToken_Cookie(t *testing.T) {
	verifier := newFakeVerifier()
	var captured identity.Verification

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "admin-token"})
	rec := httptest.NewRecorder()

	VerifyMiddleware(verifier, nil)(captureIdentity(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", captured.UserID)
}

func TestVerifyMiddleware_CookieTakesPrecedence(t *testing.T) {
	verifier := newFakeVerifier()
	var captured identity.Verification

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "admin-token"})
	req.Header.Set("Authorization", "Bearer user-token")
	rec := httptest.NewRecorder()

	VerifyMiddleware(verifier, nil)(captureIdentity(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", captured.UserID)
	assert.Equal(t, []string{"admin-token"}, verifier.seen)
}

func TestVerifyMiddleware_NoToken(t *testing.T) {
	verifier := newFakeVerifier()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()

	VerifyMiddleware(verifier, nil)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	assert.Empty(t, verifier.seen)
}

func TestVerifyMiddleware_InvalidToken(t *testing.T) {
	verifier := newFakeVerifier()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()

	VerifyMiddleware(verifier, nil)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid token", body["error"])
}

func TestVerifyMiddleware_VerifierUnavailable_FailsClosed(t *testing.T) {
	verifier := newFakeVerifier()
	verifier.err = errors.New("identity service unreachable")
	core, logs := observer.New(zap.WarnLevel)
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rec := httptest.NewRecorder()

	VerifyMiddleware(verifier, zap.New(core))(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	assert.Equal(t, 1, logs.FilterMessage("token verification failed").Len())
}

func TestExtractToken_MalformedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	assert.Empty(t, ExtractToken(req))
}

// ============================================
// RequireRole Tests
// ============================================

func TestRequireRole_HasRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(WithIdentity(req.Context(), identity.Verification{Valid: true, UserID: "admin-1", Role: "admin"}))
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	RequireRole("admin")(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole_HasAlternateRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(WithIdentity(req.Context(), identity.Verification{Valid: true, UserID: "u", Role: "user"}))
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	RequireRole("admin", "user")(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole_NoRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(WithIdentity(req.Context(), identity.Verification{Valid: true, UserID: "u", Role: "user"}))
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	RequireRole("admin")(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRole_NoIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	RequireRole("admin")(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================
// Context helper Tests
// ============================================

func TestGetIdentity_InvalidIgnored(t *testing.T) {
	ctx := WithIdentity(context.Background(), identity.Verification{Valid: false, UserID: "x"})

	_, ok := GetIdentity(ctx)
	assert.False(t, ok)
	assert.Empty(t, GetUserID(ctx))
}

func TestGetUserID_WithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), identity.Verification{Valid: true, UserID: "user-9"})
	assert.Equal(t, "user-9", GetUserID(ctx))
}

// ============================================
// RequestID / Logging Tests
// ============================================

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seen = GetRequestID(r.Context()) })

	rec := httptest.NewRecorder()
	RequestID(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_KeepsIncoming(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seen = GetRequestID(r.Context()) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	RequestID(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-42", seen)
}

func TestLogging_RecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodPost, "/order", bytes.NewReader(nil))
	RequestID(Logging(zap.New(core))(next)).ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/order", fields["path"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}
