package translate

import "testing"

func TestTextTranslatorAddsTrailingNewline(t *testing.T) {
	var tr TextTranslator
	s1, err := tr.To1("line one\nline two", Context{})
	if err != nil {
		t.Fatalf("To1: %v", err)
	}
	if s1 != "line one\nline two\n" {
		t.Fatalf("To1 = %q, want trailing newline added", s1)
	}
}

func TestTextTranslatorStripsTrailingNewlineOnRead(t *testing.T) {
	var tr TextTranslator
	s0, err := tr.To0("line one\nline two\n", Context{})
	if err != nil {
		t.Fatalf("To0: %v", err)
	}
	if s0 != "line one\nline two" {
		t.Fatalf("To0 = %q, want no trailing newline", s0)
	}
}

func TestTextTranslatorCanonicalisesBlankLines(t *testing.T) {
	var tr TextTranslator
	s0, err := tr.To0("para one\n   \nparagraph two\n", Context{})
	if err != nil {
		t.Fatalf("To0: %v", err)
	}
	want := "para one\n\nparagraph two"
	if s0 != want {
		t.Fatalf("To0 = %q, want %q (whitespace-only line normalised to empty)", s0, want)
	}
}

func TestTextTranslatorEmptyStaysEmpty(t *testing.T) {
	var tr TextTranslator
	s1, err := tr.To1("", Context{})
	if err != nil {
		t.Fatalf("To1: %v", err)
	}
	if s1 != "" {
		t.Fatalf("To1(\"\") = %q, want empty", s1)
	}
}
