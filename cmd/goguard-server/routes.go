package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

type api struct {
	engine *goGuard.Engine
	log    *zap.Logger
}

func newRouter(engine *goGuard.Engine, log *zap.Logger, trustProxy bool) http.Handler {
	a := &api{engine: engine, log: log}
	admin := middleware.RequireAdmin(engine)
	critical := middleware.RequireAdminCritical(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", prometheus.New(engine))

	mux.HandleFunc("POST /auth/register", a.register)
	mux.HandleFunc("POST /auth/login", a.login)
	mux.HandleFunc("GET /auth/me", a.me)
	mux.HandleFunc("POST /auth/password/change", a.changePassword)
	mux.HandleFunc("POST /auth/password/reset-request", a.requestReset)
	mux.HandleFunc("POST /auth/password/reset", a.resetPassword)
	mux.HandleFunc("POST /auth/email/verification", a.requestVerification)
	mux.HandleFunc("POST /auth/email/verify", a.verifyEmail)

	mux.HandleFunc("POST /mfa/setup", a.setupMFA)
	mux.HandleFunc("POST /mfa/confirm", a.confirmMFA)
	mux.HandleFunc("POST /mfa/disable", a.disableMFA)
	mux.HandleFunc("GET /mfa/status", a.mfaStatus)

	mux.Handle("GET /admin/users", admin(http.HandlerFunc(a.listUsers)))
	mux.Handle("POST /admin/users/{id}/subscription", critical(http.HandlerFunc(a.updateSubscription)))
	mux.Handle("POST /admin/users/{id}/toggle-admin", critical(http.HandlerFunc(a.toggleAdmin)))
	mux.Handle("POST /admin/users/{id}/reset-mfa-grace", critical(http.HandlerFunc(a.resetGrace)))

	var h http.Handler = mux
	h = middleware.ClientIP(trustProxy)(h)
	h = middleware.SecurityHeaders(middleware.HeaderConfig{})(h)
	return h
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, goGuard.ErrInvalidInput)
		return false
	}
	return true
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	if goGuard.ClassOf(err) == goGuard.ClassInternal {
		a.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	middleware.WriteError(w, err)
}

func token(r *http.Request) string {
	t, _ := middleware.BearerToken(r)
	return t
}

/*
====================================
ACCOUNT
====================================
*/

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decode(w, r, &body) {
		return
	}
	view, err := a.engine.Register(r.Context(), goGuard.RegisterRequest{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, view)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		MFACode  string `json:"mfa_code"`
	}
	if !decode(w, r, &body) {
		return
	}

	var (
		res *goGuard.LoginResult
		err error
	)
	if body.MFACode != "" {
		res, err = a.engine.LoginWithMFA(r.Context(), body.Email, body.Password, body.MFACode)
	} else {
		res, err = a.engine.Login(r.Context(), body.Email, body.Password)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	view, err := a.engine.GetCurrentUser(r.Context(), token(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.ChangePassword(r.Context(), token(r), body.Current, body.New); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestReset answers 202 for unknown addresses too.
func (a *api) requestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.RequestPasswordReset(r.Context(), body.Email); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) requestVerification(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.RequestEmailVerification(r.Context(), token(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.VerifyEmail(r.Context(), body.Token); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*
====================================
MFA
====================================
*/

type codeBody struct {
	Code string `json:"code"`
}

func (a *api) setupMFA(w http.ResponseWriter, r *http.Request) {
	setup, err := a.engine.SetupMFA(r.Context(), token(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, setup)
}

func (a *api) confirmMFA(w http.ResponseWriter, r *http.Request) {
	var body codeBody
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.ConfirmMFA(r.Context(), token(r), body.Code); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) disableMFA(w http.ResponseWriter, r *http.Request) {
	var body codeBody
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.DisableMFA(r.Context(), token(r), body.Code); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) mfaStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.engine.GetMFAStatus(r.Context(), token(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

/*
====================================
ADMIN
====================================
*/

func (a *api) listUsers(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, goGuard.ErrInvalidInput)
			return
		}
		limit = n
	}
	users, err := a.engine.ListUsers(r.Context(), token(r), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

func (a *api) updateSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Months int `json:"months"`
	}
	if !decode(w, r, &body) {
		return
	}
	view, err := a.engine.UpdateSubscription(r.Context(), token(r), r.PathValue("id"), body.Months)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (a *api) toggleAdmin(w http.ResponseWriter, r *http.Request) {
	view, err := a.engine.ToggleAdminStatus(r.Context(), token(r), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (a *api) resetGrace(w http.ResponseWriter, r *http.Request) {
	st, err := a.engine.ResetAdminMFAGrace(r.Context(), token(r), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}
