package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthorizer struct {
	gotToken string
	gotOp    goGuard.OperationClass
	err      error
}

func (f *fakeAuthorizer) Authorize(_ context.Context, token string, op goGuard.OperationClass) (*goGuard.Principal, error) {
	f.gotToken, f.gotOp = token, op
	if f.err != nil {
		return nil, f.err
	}
	return &goGuard.Principal{UserID: "u1", Email: "a@example.com"}, nil
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-User", p.UserID)
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestGuardPassesPrincipal(t *testing.T) {
	authz := &fakeAuthorizer{}
	rec := serve(RequireWrite(authz)(okHandler(t)), "bearer abc.def")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", rec.Header().Get("X-User"))
	assert.Equal(t, "abc.def", authz.gotToken)
	assert.Equal(t, goGuard.OpWrite, authz.gotOp)
}

func TestGuardShorthandsSelectClass(t *testing.T) {
	cases := []struct {
		mw   func(Authorizer) func(http.Handler) http.Handler
		want goGuard.OperationClass
	}{
		{RequireRead, goGuard.OpRead},
		{RequireWrite, goGuard.OpWrite},
		{RequireAdmin, goGuard.OpAdmin},
		{RequireAdminCritical, goGuard.OpAdminCritical},
	}
	for _, tc := range cases {
		authz := &fakeAuthorizer{}
		serve(tc.mw(authz)(okHandler(t)), "Bearer t")
		assert.Equal(t, tc.want, authz.gotOp)
	}
}

func TestGuardMissingToken(t *testing.T) {
	authz := &fakeAuthorizer{}
	for _, header := range []string{"", "Basic Zm9v", "Bearer ", "Bearer    "} {
		rec := serve(RequireRead(authz)(okHandler(t)), header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	}
	assert.Empty(t, authz.gotToken)
}

func TestGuardMapsEngineErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{goGuard.ErrSessionExpired, http.StatusUnauthorized, "authentication"},
		{&goGuard.SubscriptionExpiredError{ExpiredAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}, http.StatusForbidden, "authorization"},
		{goGuard.ErrAdminRequired, http.StatusForbidden, "authorization"},
		{goGuard.ErrAdminMFARequired, http.StatusForbidden, "authorization"},
		{goGuard.ErrStoreUnavailable, http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rec := serve(RequireAdmin(&fakeAuthorizer{err: tc.err})(okHandler(t)), "Bearer t")
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		body := decodeBody(t, rec)
		assert.Equal(t, tc.code, body.Code)
		assert.Equal(t, goGuard.PublicMessage(tc.err), body.Error)
	}
}

func TestGuardNilEngine(t *testing.T) {
	rec := serve(Guard(nil, goGuard.OpRead)(okHandler(t)), "Bearer t")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeBody(t, rec).Error)
}

func TestWriteErrorLockoutAndAttempts(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &goGuard.LockedError{Remaining: 90 * time.Second})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "120", rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, decodeBody(t, rec).RetryAfterMinutes)

	rec = httptest.NewRecorder()
	WriteError(rec, &goGuard.CredentialsError{RemainingAttempts: 0})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	require.NotNil(t, body.RemainingAttempts)
	assert.Equal(t, 0, *body.RemainingAttempts)
}
