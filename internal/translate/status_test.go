package translate

import "testing"

func TestNewStatusTranslatorRemapsProhibitedAndClosed(t *testing.T) {
	st, err := NewStatusTranslator([]string{"new", "open", "ignore", "fixed"}, "fixed", "tb")
	if err != nil {
		t.Fatalf("NewStatusTranslator: %v", err)
	}

	cases := map[string]string{
		"new":    "tb_new",
		"open":   "open",
		"ignore": "tb_ignore",
		"fixed":  "closed",
	}
	for s0, wantS1 := range cases {
		got, err := st.To1(s0, Context{})
		if err != nil {
			t.Fatalf("To1(%q): %v", s0, err)
		}
		if got != wantS1 {
			t.Fatalf("To1(%q) = %q, want %q", s0, got, wantS1)
		}
		back, err := st.To0(got, Context{})
		if err != nil {
			t.Fatalf("To0(%q): %v", got, err)
		}
		if back != s0 {
			t.Fatalf("round trip %q -> %q -> %q", s0, got, back)
		}
	}
}

func TestNewStatusTranslatorRequiresClosedInSource(t *testing.T) {
	if _, err := NewStatusTranslator([]string{"new", "open"}, "fixed", "tb"); err == nil {
		t.Fatal("expected error when closedStatus is not in side0Statuses")
	}
}

func TestNewStatusTranslatorRejectsClash(t *testing.T) {
	// Two distinct side-0 statuses that would collide onto the same
	// side-1 name ("closed" is reserved for the designated closed
	// status, so a literal "closed" entry alongside a different
	// closedStatus choice collides).
	if _, err := NewStatusTranslator([]string{"closed", "done"}, "done", "tb"); err == nil {
		t.Fatal("expected clash error")
	}
}

func TestUnknownStatusTranslation(t *testing.T) {
	st, err := NewStatusTranslator([]string{"open", "fixed"}, "fixed", "tb")
	if err != nil {
		t.Fatalf("NewStatusTranslator: %v", err)
	}
	if _, err := st.To1("nonexistent", Context{}); err == nil {
		t.Fatal("expected error for unmapped side-0 status")
	}
	if _, err := st.To0("nonexistent", Context{}); err == nil {
		t.Fatal("expected error for unmapped side-1 status")
	}
}
