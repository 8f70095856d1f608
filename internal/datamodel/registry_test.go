package datamodel

import (
	"log/slog"
	"os"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	r := NewRegistry(logger)

	r.Register(ClusterDef{
		ID:   0x0006,
		Name: "OnOff",
		Attributes: []AttributeDef{
			{ID: 0, Name: "OnOff", Type: TypeBoolean, Size: 1, Access: AccessRead},
		},
	})

	got := r.Get(0x0006)
	if got == nil {
		t.Fatal("cluster not found")
	}
	if got.Name != "OnOff" {
		t.Errorf("name = %q, want %q", got.Name, "OnOff")
	}

	// Mutating the copy must not leak into the registry.
	got.Attributes[0].Name = "changed"
	if again := r.Get(0x0006); again.Attributes[0].Name != "OnOff" {
		t.Errorf("registry mutated through copy: %q", again.Attributes[0].Name)
	}

	if a, ok := r.Lookup(0x0006, 0); !ok || a.Size != 1 {
		t.Errorf("Lookup = %v, %v", a, ok)
	}
	if _, ok := r.Lookup(0x0006, 0x4000); ok {
		t.Error("Lookup of unknown attribute should fail")
	}
	if r.Get(0x0300) != nil {
		t.Error("unknown cluster should be nil")
	}
}

func TestRegistryAllSorted(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	r := NewRegistry(logger)
	r.Register(ClusterDef{ID: 0x0039, Name: "b"})
	r.Register(ClusterDef{ID: 0x0006, Name: "a"})
	r.Register(ClusterDef{ID: 0x0008, Name: "c"})

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != 0x0006 || all[1].ID != 0x0008 || all[2].ID != 0x0039 {
		t.Errorf("order = %v %v %v", all[0].ID, all[1].ID, all[2].ID)
	}
}

func TestWithGlobals(t *testing.T) {
	fm := AttributeDef{ID: AttrFeatureMap, Name: "FeatureMap", Type: TypeBitmap32, Size: 4}
	base := ClusterDef{ID: 1, Attributes: []AttributeDef{{ID: 0, Name: "x"}}}
	c := base.WithGlobals(fm)
	if len(c.Attributes) != 2 {
		t.Fatalf("attrs = %d, want 2", len(c.Attributes))
	}
	if len(base.Attributes) != 1 {
		t.Error("WithGlobals mutated receiver")
	}
	if c.WithGlobals(fm).Attributes[1].ID != AttrFeatureMap || len(c.WithGlobals(fm).Attributes) != 2 {
		t.Error("global appended twice")
	}
}

func TestAttributePathString(t *testing.T) {
	p := AttributePath{Endpoint: 3, Cluster: 0x0006, Attribute: 0}
	if p.String() != "3/0x0006/0x0000" {
		t.Errorf("got %q", p.String())
	}
}
