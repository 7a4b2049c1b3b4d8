package value

import (
	"testing"
	"time"
)

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set("b", Integer(1))
	m.Set("a", Integer(2))
	m.Set("c", Integer(3))
	m.Set("a", Integer(4))
	want := []string{"b", "a", "c"}
	got := m.Keys()
	if len(got) != len(want) {
		t.Fatalf("keys %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys %v, want %v", got, want)
		}
	}
	if v, _ := m.Get("a"); v != Integer(4) {
		t.Fatalf("a=%v, want 4", v)
	}
}

func TestMapDelete(t *testing.T) {
	m := NewMap()
	m.Set("x", Null{})
	m.Set("y", Null{})
	m.Delete("x")
	if m.Len() != 1 || m.Keys()[0] != "y" {
		t.Fatalf("unexpected keys %v", m.Keys())
	}
	if _, ok := m.Get("x"); ok {
		t.Fatalf("x should be gone")
	}
}

func TestAutoClassification(t *testing.T) {
	tests := map[string]Kind{
		"":                      KindNull,
		"true":                  KindBool,
		"false":                 KindBool,
		"42":                    KindInteger,
		"-17":                   KindInteger,
		"2.5":                   KindFloat,
		"1e6":                   KindFloat,
		"2021-07-08T12:00:00Z":  KindDatetime,
		"Michael Greenberg":     KindString,
		"true story":            KindString,
		"9223372036854775808":   KindFloat, // overflows int64
		"2021-07-08T12:00:00+02:00": KindDatetime,
	}
	for in, want := range tests {
		if got := Auto([]byte(in)).Kind(); got != want {
			t.Fatalf("Auto(%q)=%v, want %v", in, got, want)
		}
	}
	if Auto([]byte{0xff, 0xfe}).Kind() != KindBytes {
		t.Fatalf("invalid utf8 should classify as bytes")
	}
}

func TestFromTypedFallsBack(t *testing.T) {
	if v := FromTyped(TypInteger, []byte("not a number")); v.Kind() != KindString {
		t.Fatalf("expected string fallback, got %v", v.Kind())
	}
	if v := FromTyped(TypBoolean, []byte("yes")); v.Kind() != KindString {
		t.Fatalf("expected string fallback, got %v", v.Kind())
	}
	if v := FromTyped(TypString, []byte{0xc3, 0x28}); v.Kind() != KindBytes {
		t.Fatalf("expected bytes fallback, got %v", v.Kind())
	}
	if v := FromTyped(TypInteger, []byte("42")); v != Integer(42) {
		t.Fatalf("expected 42, got %v", v)
	}
}

func TestRenderNewlinePolicy(t *testing.T) {
	if got := string(Render(Integer(2), true)); got != "2\n" {
		t.Fatalf("got %q", got)
	}
	if got := string(Render(Integer(2), false)); got != "2" {
		t.Fatalf("got %q", got)
	}
	if got := string(Render(String("line\n"), true)); got != "line\n" {
		t.Fatalf("string already terminated: %q", got)
	}
	if got := Render(Null{}, true); len(got) != 0 {
		t.Fatalf("null must render empty, got %q", got)
	}
	if got := string(Render(Bytes{0x01, 0x02}, true)); got != "\x01\x02" {
		t.Fatalf("bytes must stay raw, got %q", got)
	}
}

func TestParseTypAliases(t *testing.T) {
	tests := map[string]Typ{
		"auto": TypAuto, "bool": TypBoolean, "int": TypInteger,
		"double": TypFloat, "date": TypDatetime, "map": TypNamed,
		"array": TypList, "bytes": TypBytes,
	}
	for in, want := range tests {
		got, ok := ParseTyp(in)
		if !ok || got != want {
			t.Fatalf("ParseTyp(%q)=(%v,%v), want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseTyp("quux"); ok {
		t.Fatalf("quux should not parse")
	}
}

func TestTypValidFor(t *testing.T) {
	if !TypNamed.ValidFor(true) || TypNamed.ValidFor(false) {
		t.Fatalf("named is directory-only")
	}
	if !TypInteger.ValidFor(false) || TypInteger.ValidFor(true) {
		t.Fatalf("integer is file-only")
	}
}

func TestEqual(t *testing.T) {
	now := time.Now()
	m1 := NewMap()
	m1.Set("a", Integer(1))
	m1.Set("b", List{String("x"), Datetime(now)})
	m2 := NewMap()
	m2.Set("a", Integer(1))
	m2.Set("b", List{String("x"), Datetime(now)})
	if !Equal(m1, m2) {
		t.Fatalf("maps should compare equal")
	}
	m2.Set("c", Null{})
	if Equal(m1, m2) {
		t.Fatalf("length mismatch should fail")
	}
}
