package registry

import (
	"testing"

	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/oid"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{"latency", TypeLatency, false},
		{"per_key_count", TypePerKeyCount, false},
		{"per_ip_count", TypePerKeyCount, false},
		{"Single_Number", TypeSingleNumber, false},
		{"histogram", TypeUnknown, true},
		{"", TypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	r, err := New(
		Descriptor{Name: "connected_homers", Type: TypePerKeyCount, Root: oid.MustParse("1.2.3")},
		Descriptor{Name: "latency_us", Type: TypeLatency, Root: oid.MustParse("1.2.3.1")},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	names := r.Names()
	if names[0] != "connected_homers" || names[1] != "latency_us" {
		t.Errorf("Names() = %v, want sorted", names)
	}

	d, ok := r.Lookup("latency_us")
	if !ok || d.Type != TypeLatency || d.Root.String() != "1.2.3.1" {
		t.Errorf("Lookup(latency_us) = %+v, %v", d, ok)
	}
	if r.TypeOf("nope") != TypeUnknown {
		t.Error("TypeOf on unregistered name should be TypeUnknown")
	}
}

func TestNew_Rejects(t *testing.T) {
	root := oid.MustParse("1.2.3")
	tests := []struct {
		name  string
		descs []Descriptor
		want  error
	}{
		{
			name: "duplicate",
			descs: []Descriptor{
				{Name: "a", Type: TypeLatency, Root: root},
				{Name: "a", Type: TypeLatency, Root: root},
			},
			want: errors.ErrDuplicateName,
		},
		{
			name:  "unknown type",
			descs: []Descriptor{{Name: "a", Root: root}},
			want:  errors.ErrInvalidType,
		},
		{
			name:  "empty root",
			descs: []Descriptor{{Name: "a", Type: TypeLatency}},
			want:  errors.ErrMissingField,
		},
		{
			name:  "bad name",
			descs: []Descriptor{{Name: "has space", Type: TypeLatency, Root: root}},
			want:  errors.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.descs...)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_CopiesRoot(t *testing.T) {
	root := oid.MustParse("1.2.3")
	r, err := New(Descriptor{Name: "a", Type: TypeSingleNumber, Root: root})
	if err != nil {
		t.Fatal(err)
	}
	root[0] = 9

	d, _ := r.Lookup("a")
	if d.Root.String() != "1.2.3" {
		t.Errorf("root aliased caller slice: %s", d.Root)
	}
}

func TestDefault(t *testing.T) {
	r := Default()
	if r.Len() != 7 {
		t.Fatalf("Len() = %d, want 7", r.Len())
	}

	d, ok := r.Lookup("connected_homers")
	if !ok {
		t.Fatal("connected_homers missing")
	}
	if d.Type != TypePerKeyCount || d.Root.String() != "1.2.826.0.1.1578918.9.3.3.1" {
		t.Errorf("connected_homers = %+v", d)
	}
	for _, d := range r.Descriptors() {
		if !oid.Contains(NodeRoot, d.Root) {
			t.Errorf("%s root %s outside node root", d.Name, d.Root)
		}
	}
}

func TestOwner(t *testing.T) {
	r, err := New(
		Descriptor{Name: "outer", Type: TypePerKeyCount, Root: oid.MustParse("1.2.3")},
		Descriptor{Name: "inner", Type: TypeLatency, Root: oid.MustParse("1.2.3.1")},
	)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		id   string
		want string
	}{
		{"1.2.3.1.4", "inner"},
		{"1.2.3.10.0.0.1", "outer"},
		{"1.2.3", "outer"},
		{"1.2.4", ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d, ok := r.Owner(oid.MustParse(tt.id))
			if ok != (tt.want != "") || d.Name != tt.want {
				t.Errorf("Owner(%s) = %q, %v; want %q", tt.id, d.Name, ok, tt.want)
			}
		})
	}
}
