// Package validation provides centralized input validation for statbridge.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// StatisticNameRules returns the rules for statistic names. Names double as
// feed subscription topics, so they stay within a conservative charset.
func StatisticNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateStatisticName validates a statistic name with default rules.
func ValidateStatisticName(name string) error {
	return ValidateName(name, StatisticNameRules())
}

// =============================================================================
// Address Validation
// =============================================================================

// ValidateEndpoint validates a feed endpoint. Accepted forms are
// "tcp://host:port" and "unix:///path/to/socket".
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "tcp":
		if _, _, err := net.SplitHostPort(u.Host); err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
	case "unix", "ipc":
		if u.Path == "" {
			return fmt.Errorf("invalid endpoint %q: missing socket path", endpoint)
		}
	default:
		return fmt.Errorf("invalid endpoint %q: unsupported scheme %q (expected tcp, unix or ipc)", endpoint, u.Scheme)
	}

	return nil
}

// ValidateListenAddr validates a "host:port" listen address.
func ValidateListenAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}
