// Package policy evaluates admission targets against allow/deny glob
// patterns.
//
// A Policy is configured with allow and deny patterns:
//   - Allow patterns: the target must match at least one
//   - Deny patterns: the target must not match any
//
// Patterns are doublestar globs matched against the target with its scheme
// stripped, so "example.com/**" covers both http and https. The Policy is
// safe for concurrent use after creation.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Config configures a Policy.
type Config struct {
	// Allow are glob patterns the target must match (at least one).
	// Empty means every well-formed target is allowed.
	Allow []string

	// Deny are glob patterns the target must not match (any).
	// Deny wins over Allow.
	Deny []string
}

// Errors returned by Policy operations.
var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrDenied is returned when a target is rejected by the policy.
	ErrDenied = errors.New("target not permitted by policy")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Policy vets admission targets. A zero-config policy permits everything.
type Policy struct {
	allow []string
	deny  []string
}

// New creates a Policy from the given configuration. Returns an error if
// any pattern cannot be compiled.
func New(cfg Config) (*Policy, error) {
	allow := make([]string, 0, len(cfg.Allow))
	for _, raw := range cfg.Allow {
		p := normalize(raw)
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		allow = append(allow, p)
	}

	deny := make([]string, 0, len(cfg.Deny))
	for _, raw := range cfg.Deny {
		p := normalize(raw)
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		deny = append(deny, p)
	}

	return &Policy{allow: allow, deny: deny}, nil
}

// Validate returns nil if target passes the policy, ErrDenied otherwise.
func (p *Policy) Validate(target string) error {
	key := normalize(target)

	for _, pat := range p.deny {
		if matchPattern(pat, key) {
			return fmt.Errorf("%w: %s", ErrDenied, target)
		}
	}

	if len(p.allow) == 0 {
		return nil
	}
	for _, pat := range p.allow {
		if matchPattern(pat, key) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDenied, target)
}

// AllowPatterns returns the normalized allow patterns.
func (p *Policy) AllowPatterns() []string {
	return append([]string(nil), p.allow...)
}

// DenyPatterns returns the normalized deny patterns.
func (p *Policy) DenyPatterns() []string {
	return append([]string(nil), p.deny...)
}

// normalize strips the URL scheme and any trailing slash so patterns are
// written against "host/path" form.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimSuffix(s, "/")
}

// matchPattern matches a key against a doublestar pattern. A bare host
// pattern like "example.com" also covers paths under that host.
func matchPattern(pattern, key string) bool {
	matched, err := doublestar.Match(pattern, key)
	if err != nil {
		// Pattern was validated at construction time, so this shouldn't happen
		return false
	}
	if matched {
		return true
	}
	if !strings.ContainsRune(pattern, '/') {
		matched, err = doublestar.Match(pattern+"/**", key)
		return err == nil && matched
	}
	return false
}
