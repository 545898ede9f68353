package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// backupCodeBytes is the entropy per code; 4 bytes render as 8 hex characters.
const backupCodeBytes = 4

// GenerateBackupCodes returns n distinct upper-case hex codes.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	buf := make([]byte, backupCodeBytes)
	for len(codes) < n {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// CanonicalizeBackupCode upper-cases code and strips spaces and dashes, so
// "ab12-cd34" and "AB12CD34" match. It returns "" when the result is not a
// well-formed code.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != 2*backupCodeBytes {
		return ""
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return ""
		}
	}
	return s
}

// HashBackupCode derives the stored form of a canonical code. Binding the user
// id keeps identical codes on different accounts distinct.
func HashBackupCode(userID, canonicalCode string) string {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes canonicalizes and hashes every code for storage.
func HashBackupCodes(userID string, codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if canon := CanonicalizeBackupCode(c); canon != "" {
			out = append(out, HashBackupCode(userID, canon))
		}
	}
	return out
}
