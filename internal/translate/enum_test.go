package translate

import "testing"

func TestEnumNoneRoundTrip(t *testing.T) {
	var e EnumTranslator

	s1, err := e.To1("", Context{})
	if err != nil {
		t.Fatalf("To1(\"\"): %v", err)
	}
	if s1 != "NONE" {
		t.Fatalf("To1(\"\") = %q, want NONE", s1)
	}

	s0, err := e.To0("NONE", Context{})
	if err != nil {
		t.Fatalf("To0(NONE): %v", err)
	}
	if s0 != "" {
		t.Fatalf("To0(NONE) = %q, want empty", s0)
	}
}

func TestEnumPassesThroughKeyword(t *testing.T) {
	var e EnumTranslator
	s1, err := e.To1("a b", Context{})
	if err != nil {
		t.Fatalf("To1: %v", err)
	}
	if s1 != "a_b" {
		t.Fatalf("To1(\"a b\") = %q, want a_b", s1)
	}
	s0, err := e.To0(s1, Context{})
	if err != nil {
		t.Fatalf("To0: %v", err)
	}
	if s0 != "a b" {
		t.Fatalf("round trip = %q, want \"a b\"", s0)
	}
}
