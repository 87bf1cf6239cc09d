// Package registry holds the statistic descriptors the bridge subscribes to:
// for every statistic name, how its payload is laid out and where in the OID
// tree its entries live.
//
// A Registry is built once from configuration before the feed subscriber
// starts and is read-only afterwards, so it needs no locking.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xtxerr/statbridge/config"
	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/oid"
	"github.com/xtxerr/statbridge/internal/validation"
)

// Type is the payload layout of a statistic.
type Type int

const (
	TypeUnknown Type = iota
	// TypeLatency payloads are mean, variance, low and high watermark.
	TypeLatency
	// TypePerKeyCount payloads are alternating key, count pairs.
	TypePerKeyCount
	// TypeSingleNumber payloads are one integer.
	TypeSingleNumber
)

// String returns the configuration name of the type.
func (t Type) String() string {
	switch t {
	case TypeLatency:
		return "latency"
	case TypePerKeyCount:
		return "per_key_count"
	case TypeSingleNumber:
		return "single_number"
	default:
		return "unknown"
	}
}

// ParseType parses a configuration type name. "per_ip_count" is accepted as
// an alias of "per_key_count".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "latency":
		return TypeLatency, nil
	case "per_key_count", "per_ip_count":
		return TypePerKeyCount, nil
	case "single_number", "scalar":
		return TypeSingleNumber, nil
	default:
		return TypeUnknown, errors.Wrapf(errors.ErrInvalidType, "%q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Descriptor describes one statistic.
type Descriptor struct {
	Name string
	Type Type
	Root oid.OID
}

// Registry maps statistic names to descriptors.
type Registry struct {
	byName map[string]Descriptor
	names  []string
}

// New builds a registry. Names must be unique and valid, roots non-empty and
// types known. All problems are reported together.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	errs := errors.NewValidationErrors()

	for i, d := range descs {
		field := fmt.Sprintf("statistics[%d]", i)
		if err := validation.ValidateStatisticName(d.Name); err != nil {
			errs.Add(errors.NewInvalidValue(field+".name", d.Name, err.Error()))
			continue
		}
		if _, dup := r.byName[d.Name]; dup {
			errs.Add(errors.Wrapf(errors.ErrDuplicateName, "%s: %q", field, d.Name))
			continue
		}
		if d.Type == TypeUnknown {
			errs.Add(errors.Wrapf(errors.ErrInvalidType, "%s: %q", field, d.Name))
			continue
		}
		if len(d.Root) == 0 {
			errs.AddMissing(field + ".root")
			continue
		}

		d.Root = d.Root.Clone()
		r.byName[d.Name] = d
		r.names = append(r.names, d.Name)
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// TypeOf returns the type registered under name, or TypeUnknown.
func (r *Registry) TypeOf(name string) Type {
	return r.byName[name].Type
}

// Names returns the registered names in sorted order. These are the feed
// subscription topics.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Descriptors returns all descriptors sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// Owner returns the statistic whose subtree contains id. When roots nest,
// the deepest root wins.
func (r *Registry) Owner(id oid.OID) (Descriptor, bool) {
	var (
		best  Descriptor
		found bool
	)
	for _, d := range r.byName {
		if !oid.Contains(d.Root, id) {
			continue
		}
		if !found || len(d.Root) > len(best.Root) {
			best, found = d, true
		}
	}
	return best, found
}

// Len returns the number of registered statistics.
func (r *Registry) Len() int {
	return len(r.names)
}

// =============================================================================
// Reference deployment
// =============================================================================

// NodeRoot is the subtree the reference call-processing node serves.
var NodeRoot = oid.MustParse(config.DefaultNodeRoot)

// Default returns the statistics published by the reference
// call-processing node.
func Default() *Registry {
	sub := func(components ...uint32) oid.OID { return oid.Append(NodeRoot, components...) }

	r, err := New(
		Descriptor{Name: "latency_us", Type: TypeLatency, Root: sub(1)},
		Descriptor{Name: "hss_latency_us", Type: TypeLatency, Root: sub(3, 2)},
		Descriptor{Name: "hss_digest_latency_us", Type: TypeLatency, Root: sub(3, 3)},
		Descriptor{Name: "hss_subscription_latency_us", Type: TypeLatency, Root: sub(3, 4)},
		Descriptor{Name: "xdm_latency_us", Type: TypeLatency, Root: sub(2, 2)},
		Descriptor{Name: "connected_homers", Type: TypePerKeyCount, Root: sub(3, 1)},
		Descriptor{Name: "connected_homesteads", Type: TypePerKeyCount, Root: sub(2, 1)},
	)
	if err != nil {
		panic(err)
	}
	return r
}
