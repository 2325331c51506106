package sema

import (
	"reflect"
	"testing"
)

func TestBoolCoercion(t *testing.T) {
	cases := []struct {
		name    string
		payload any
		want    bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"empty string", "", false},
		{"string", "hello", true},
		{"zero int", 0, false},
		{"int", 7, true},
		{"zero float", 0.0, false},
		{"empty list", []any{}, false},
		{"list", []any{1}, true},
		{"empty map", map[string]any{}, false},
		{"map", map[string]any{"k": "v"}, true},
		{"struct", struct{}{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := New(tc.payload).Bool(); got != tc.want {
				t.Errorf("Bool() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLen(t *testing.T) {
	cases := []struct {
		name    string
		payload any
		want    int
	}{
		{"text runes", "héllo", 5},
		{"list", []any{1, 2, 3}, 3},
		{"map", map[string]any{"a": 1, "b": 2}, 2},
		{"scalar", 42, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := New(tc.payload).Len(); got != tc.want {
				t.Errorf("Len() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestStringRendering(t *testing.T) {
	t.Run("text passes through", func(t *testing.T) {
		if got := New("plain").String(); got != "plain" {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("map renders as JSON", func(t *testing.T) {
		got := New(map[string]any{"name": "ada"}).String()
		if got != `{"name":"ada"}` {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("number", func(t *testing.T) {
		if got := New(42).String(); got != "42" {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("nil renders empty", func(t *testing.T) {
		if got := New(nil).String(); got != "" {
			t.Errorf("String() = %q", got)
		}
	})
}

func TestSemSynViews(t *testing.T) {
	v := New("payload")
	if v.IsSemantic() {
		t.Fatal("new value should start in native mode")
	}

	s := v.Sem()
	if !s.IsSemantic() {
		t.Error("Sem() should switch to semantic mode")
	}
	if v.IsSemantic() {
		t.Error("Sem() must not mutate the original")
	}
	if s.Sem().Syn().IsSemantic() {
		t.Error("Syn() should switch back to native mode")
	}
}

func TestRecoverStructure(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		got := recoverStructure(`{"a": 1}`)
		want := map[string]any{"a": 1.0}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("recoverStructure() = %#v", got)
		}
	})

	t.Run("fenced array", func(t *testing.T) {
		got := recoverStructure("```json\n[1, 2]\n```")
		want := []any{1.0, 2.0}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("recoverStructure() = %#v", got)
		}
	})

	t.Run("unparseable falls back to text", func(t *testing.T) {
		if got := recoverStructure("{broken"); got != "{broken" {
			t.Errorf("recoverStructure() = %#v", got)
		}
	})
}
