package facts

import (
	"context"
	"testing"
)

type stubFact struct {
	name string
}

func (f stubFact) Name() string { return f.name }

func (f stubFact) Fetch(ctx context.Context, host Runner, args Args) (any, error) {
	return nil, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(stubFact{name: "alpha"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !r.IsRegistered("alpha") {
		t.Error("alpha should be registered")
	}
	if r.IsRegistered("beta") {
		t.Error("beta should not be registered")
	}
	if _, ok := r.Get("alpha"); !ok {
		t.Error("Get(alpha) should succeed")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubFact{name: "alpha"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(stubFact{name: "alpha"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(stubFact{name: name}); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestDefaultRegistryCarriesBuiltins(t *testing.T) {
	for _, name := range []string{"os_version", "kernel", "arch", "hostname", "memory", "packages", "file", "directory"} {
		if !IsRegistered(name) {
			t.Errorf("built-in fact %q missing from default registry", name)
		}
	}
}

func TestMutableBuiltins(t *testing.T) {
	tests := []struct {
		name    string
		mutable bool
	}{
		{"file", true},
		{"directory", true},
		{"os_version", false},
		{"packages", false},
	}

	for _, tt := range tests {
		fact, ok := Default.Get(tt.name)
		if !ok {
			t.Fatalf("fact %q not registered", tt.name)
		}
		_, mutable := fact.(MutableFact)
		if mutable != tt.mutable {
			t.Errorf("fact %q: mutable = %v, want %v", tt.name, mutable, tt.mutable)
		}
	}
}

func TestArgsCanonical(t *testing.T) {
	tests := []struct {
		args Args
		want string
	}{
		{nil, ""},
		{Args{}, ""},
		{Args{"path": "/etc"}, "path=/etc"},
		{Args{"b": "2", "a": "1"}, "a=1,b=2"},
	}

	for _, tt := range tests {
		if got := tt.args.Canonical(); got != tt.want {
			t.Errorf("Canonical(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestKeyDistinguishesHostFactArgs(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range []string{
		Key("web1", "file", Args{"path": "/a"}),
		Key("web1", "file", Args{"path": "/b"}),
		Key("web2", "file", Args{"path": "/a"}),
		Key("web1", "directory", Args{"path": "/a"}),
	} {
		if keys[k] {
			t.Fatalf("duplicate key %q", k)
		}
		keys[k] = true
	}
}
