// Package oid implements hierarchical SNMP object identifiers, their total
// order and the subtree relation used by the index and the responder.
package oid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xtxerr/statbridge/internal/errors"
)

// OID is an SNMP object identifier. The zero-length OID is only valid as a
// match-everything subtree root.
type OID []uint32

// Parse parses a dotted-decimal OID. A single leading dot is accepted.
// Every component must be a decimal uint32.
func Parse(s string) (OID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, errors.Wrap(errors.ErrInvalidOID, "empty")
	}

	parts := strings.Split(s, ".")
	out := make(OID, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, errors.Wrapf(errors.ErrInvalidOID, "%q: empty component at %d", s, i)
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidOID, "%q: component %q", s, p)
		}
		out[i] = uint32(v)
	}
	return out, nil
}

// MustParse is Parse for constants. It panics on invalid input.
func MustParse(s string) OID {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

// String renders the OID as dotted decimal without a leading dot.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(o) * 4)
	for i, c := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	return b.String()
}

// Dotted renders the OID with a leading dot, the form gosnmp uses for
// variable names.
func (o OID) Dotted() string {
	return "." + o.String()
}

// Compare orders a and b lexicographically by component. A strict prefix
// sorts before any longer OID it prefixes. It returns -1, 0 or +1.
func Compare(a, b OID) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Compare is the method form of Compare.
func (o OID) Compare(other OID) int {
	return Compare(o, other)
}

// Equal reports whether a and b have the same components.
func Equal(a, b OID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Equal is the method form of Equal.
func (o OID) Equal(other OID) bool {
	return Equal(o, other)
}

// Contains reports whether candidate lies in root's subtree, that is root's
// components are a prefix of candidate's. A root contains itself.
func Contains(root, candidate OID) bool {
	if len(candidate) < len(root) {
		return false
	}
	for i := range root {
		if root[i] != candidate[i] {
			return false
		}
	}
	return true
}

// Contains is the method form of Contains.
func (o OID) Contains(candidate OID) bool {
	return Contains(o, candidate)
}

// Append returns a new OID made of id followed by components. The result
// never shares storage with id.
func Append(id OID, components ...uint32) OID {
	out := make(OID, 0, len(id)+len(components))
	out = append(out, id...)
	return append(out, components...)
}

// AppendString returns id extended by the components of suffix. The suffix
// is split on dots so both "4" and "10.0.0.1" are accepted. Components are
// parsed leniently: leading decimal digits are used and anything else
// yields zero.
func AppendString(id OID, suffix string) OID {
	parts := strings.Split(suffix, ".")
	out := make(OID, 0, len(id)+len(parts))
	out = append(out, id...)
	for _, p := range parts {
		out = append(out, lenientComponent(p))
	}
	return out
}

// Clone returns a copy of o.
func (o OID) Clone() OID {
	if o == nil {
		return nil
	}
	return append(OID(nil), o...)
}

// lenientComponent reads the leading decimal digits of s. Overflow clamps
// to the largest component. Signs and other text give zero.
func lenientComponent(s string) uint32 {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		v = v*10 + uint64(c-'0')
		if v > math.MaxUint32 {
			return math.MaxUint32
		}
	}
	return uint32(v)
}

// GoString implements fmt.GoStringer for readable test failures.
func (o OID) GoString() string {
	return fmt.Sprintf("oid.OID(%q)", o.String())
}
