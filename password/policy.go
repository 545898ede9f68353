package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinLength is the minimum accepted password length in characters.
	MinLength = 8
	// MaxLength is the maximum accepted password length in characters.
	MaxLength = 128
)

// SpecialCharacters is the set a password must draw at least one character from.
const SpecialCharacters = "!@#$%^&*(),.?\":{}|<>_-+=[]\\;'`~"

// Rule identifies a single policy check.
type Rule uint8

const (
	// RuleNone is reported by passing results.
	RuleNone Rule = iota
	// RuleLength requires MinLength..MaxLength characters.
	RuleLength
	// RuleUppercase requires an ASCII uppercase letter.
	RuleUppercase
	// RuleLowercase requires an ASCII lowercase letter.
	RuleLowercase
	// RuleDigit requires a decimal digit.
	RuleDigit
	// RuleSpecial requires a character from SpecialCharacters.
	RuleSpecial
)

// String returns the rule's stable name.
func (r Rule) String() string {
	switch r {
	case RuleLength:
		return "length"
	case RuleUppercase:
		return "uppercase"
	case RuleLowercase:
		return "lowercase"
	case RuleDigit:
		return "digit"
	case RuleSpecial:
		return "special"
	default:
		return "none"
	}
}

// Strength holds the independent outcome of every policy check.
type Strength struct {
	LengthOK   bool
	HasUpper   bool
	HasLower   bool
	HasDigit   bool
	HasSpecial bool
}

// Result is the short-circuit policy outcome. When OK is false, Rule is the
// first failing check and Reason a user-safe explanation of it.
type Result struct {
	OK     bool
	Rule   Rule
	Reason string
}

// ValidateStrength evaluates every policy check without short-circuiting.
func ValidateStrength(password string) Strength {
	n := utf8.RuneCountInString(password)
	s := Strength{LengthOK: n >= MinLength && n <= MaxLength}

	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			s.HasUpper = true
		case r >= 'a' && r <= 'z':
			s.HasLower = true
		case unicode.IsDigit(r):
			s.HasDigit = true
		case r < utf8.RuneSelf && strings.ContainsRune(SpecialCharacters, r):
			s.HasSpecial = true
		}
	}

	return s
}

// CheckStrength evaluates the checks in order (length, uppercase, lowercase,
// digit, special) and stops at the first failure.
func CheckStrength(password string) Result {
	if password == "" {
		return Result{Rule: RuleLength, Reason: "password must not be empty"}
	}

	s := ValidateStrength(password)
	switch {
	case !s.LengthOK:
		return Result{Rule: RuleLength, Reason: fmt.Sprintf("password must be between %d and %d characters", MinLength, MaxLength)}
	case !s.HasUpper:
		return Result{Rule: RuleUppercase, Reason: "password must contain at least one uppercase letter"}
	case !s.HasLower:
		return Result{Rule: RuleLowercase, Reason: "password must contain at least one lowercase letter"}
	case !s.HasDigit:
		return Result{Rule: RuleDigit, Reason: "password must contain at least one digit"}
	case !s.HasSpecial:
		return Result{Rule: RuleSpecial, Reason: "password must contain at least one special character (" + SpecialCharacters + ")"}
	}

	return Result{OK: true}
}

// IsStrong is the (ok, reason) form of CheckStrength.
func IsStrong(password string) (bool, string) {
	res := CheckStrength(password)
	return res.OK, res.Reason
}
