package factory

import (
	"testing"
	"time"
)

type sample struct{ A int }

type sampleConf struct {
	A int `json:"a"`
}

// Test registry registration and instantiation using Decode.
func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("s", func(conf map[string]any) (*sample, error) {
		var c sampleConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sample{A: c.A}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "s", Conf: map[string]any{"a": 3}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.A != 3 {
		t.Fatalf("expected 3 got %d", inst.A)
	}
}

// Test duplicate registration and unknown type errors.
func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[int]()
	if err := reg.Register("x", func(map[string]any) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("x", nil); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "y"}); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestDecode_DurationsAndWeakTypes(t *testing.T) {
	var c struct {
		Timeout time.Duration `json:"timeout"`
		Port    int           `json:"port"`
		Hosts   []string      `json:"hosts"`
	}
	err := Decode(map[string]any{"timeout": "1m30s", "port": "8080", "hosts": "a,b"}, &c)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Timeout != 90*time.Second || c.Port != 8080 || len(c.Hosts) != 2 {
		t.Fatalf("unexpected decode result: %+v", c)
	}
}

func TestRegistry_Types(t *testing.T) {
	reg := NewRegistry[int]()
	_ = reg.Register("zeta", func(map[string]any) (int, error) { return 0, nil })
	_ = reg.Register("alpha", func(map[string]any) (int, error) { return 0, nil })
	got := reg.Types()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Fatalf("unexpected types: %v", got)
	}
}
