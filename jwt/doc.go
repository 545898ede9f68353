// Package jwt issues and validates the stateless session tokens carried as
// bearer credentials.
//
// A token embeds the subject id, email, issued-at and expiry. There is no
// server-side revocation list: a leaked token stays valid until it expires, so
// SessionTTL is the only lever for limiting exposure.
//
// Validation distinguishes ErrExpired from ErrInvalid so callers can log and
// count them separately while returning the same unauthorized response.
package jwt
