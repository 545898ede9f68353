package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfterMinutes int    `json:"retry_after_minutes,omitempty"`
}

// WriteError writes err as a JSON body with the status from goGuard.StatusCode.
// Lockouts also set Retry-After in seconds.
func WriteError(w http.ResponseWriter, err error) {
	body := ErrorBody{
		Error: goGuard.PublicMessage(err),
		Code:  goGuard.ClassOf(err).String(),
	}

	var (
		lockErr *goGuard.LockedError
		credErr *goGuard.CredentialsError
	)
	if errors.As(err, &lockErr) {
		body.RetryAfterMinutes = lockErr.RemainingMinutes()
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterMinutes*60))
	}
	if errors.As(err, &credErr) {
		n := credErr.RemainingAttempts
		body.RemainingAttempts = &n
	}
	if goGuard.ClassOf(err) == goGuard.ClassAuthentication {
		w.Header().Set("WWW-Authenticate", `Bearer realm="goguard"`)
	}

	WriteJSON(w, goGuard.StatusCode(err), body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
