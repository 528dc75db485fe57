package value

import (
	"testing"
)

func TestScopeChain(t *testing.T) {
	global := NewScope(nil)
	global.Define("g", Number(1))
	entity := NewScope(global)
	entity.Define("speed", Number(5))
	script := NewScope(entity)

	t.Run("lookup walks outward", func(t *testing.T) {
		v, err := script.Get("g")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.String() != "1" {
			t.Errorf("expected 1, got %s", v)
		}
	})

	t.Run("set updates the nearest binding", func(t *testing.T) {
		if err := script.Set("speed", Number(9)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if script.HasLocal("speed") {
			t.Error("expected set not to create a local binding")
		}
		v, _ := entity.Get("speed")
		if v.String() != "9" {
			t.Errorf("expected 9, got %s", v)
		}
	})

	t.Run("define shadows", func(t *testing.T) {
		script.Define("g", Text("local"))
		v, _ := script.Get("g")
		if v.String() != "local" {
			t.Errorf("expected shadowed value, got %s", v)
		}
		v, _ = global.Get("g")
		if v.String() != "1" {
			t.Errorf("expected global untouched, got %s", v)
		}
	})

	t.Run("undefined names", func(t *testing.T) {
		if _, err := script.Get("missing"); !IsType(err, ErrorName) {
			t.Errorf("expected NAME_ERROR, got %v", err)
		}
		if err := script.Set("missing", Void()); !IsType(err, ErrorName) {
			t.Errorf("expected NAME_ERROR, got %v", err)
		}
	})
}

func TestClosureBind(t *testing.T) {
	captured := NewScope(nil)
	captured.Define("k", Number(3))
	c := &Closure{Params: []string{"a", "b"}, Captured: captured}

	sc, err := c.Bind([]Value{Number(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := sc.Get("b"); !v.IsVoid() {
		t.Errorf("expected missing argument to be void, got %s", v)
	}
	if v, _ := sc.Get("k"); v.String() != "3" {
		t.Errorf("expected captured variable, got %s", v)
	}

	if _, err := c.Bind([]Value{Void(), Void(), Void()}); !IsType(err, ErrorMismatch) {
		t.Errorf("expected TYPE_ERROR for too many inputs, got %v", err)
	}
}
