package translate

import "testing"

func TestDateTranslatorSlashMode(t *testing.T) {
	d := DateTranslator{Mode: Side1DateSlash}
	s1, err := d.To1("2026-07-30 12:34:56", Context{})
	if err != nil {
		t.Fatalf("To1: %v", err)
	}
	if s1 != "2026/07/30 12:34:56" {
		t.Fatalf("To1 = %q, want 2026/07/30 12:34:56", s1)
	}
	s0, err := d.To0(s1, Context{})
	if err != nil {
		t.Fatalf("To0: %v", err)
	}
	if s0 != "2026-07-30 12:34:56" {
		t.Fatalf("To0 = %q, want 2026-07-30 12:34:56", s0)
	}
}

func TestDateTranslatorEpochMode(t *testing.T) {
	d := DateTranslator{Mode: Side1DateEpoch}
	s1, err := d.To1("2026-07-30 12:34:56", Context{})
	if err != nil {
		t.Fatalf("To1: %v", err)
	}
	s0, err := d.To0(s1, Context{})
	if err != nil {
		t.Fatalf("To0: %v", err)
	}
	if s0 != "2026-07-30 12:34:56" {
		t.Fatalf("round trip = %q, want 2026-07-30 12:34:56", s0)
	}
}

func TestDateTranslatorRejectsMalformed(t *testing.T) {
	d := DateTranslator{Mode: Side1DateSlash}
	if _, err := d.To1("not-a-date", Context{}); err == nil {
		t.Fatal("expected error for malformed side-0 date")
	}
	if _, err := d.To0("not-a-date", Context{}); err == nil {
		t.Fatal("expected error for malformed side-1 date")
	}
}
