package translate

import "testing"

func sampleDirectories(t *testing.T) *UserDirectories {
	t.Helper()
	side0 := []Side0User{
		{ID: "alice", Email: "Alice@Example.com"},
		{ID: "bob", Email: "bob@example.com"},
		{ID: "bridge", Email: "bridge@example.com"},
	}
	side1 := []Side1User{
		{Name: "alice1", Email: "alice@example.com"},
		{Name: "bridge1", Email: "bridge@example.com"},
		{Name: "carol1", Email: "carol@example.com"},
	}
	d, err := BuildUserDirectories(side0, side1, "bridge", "bridge1")
	if err != nil {
		t.Fatalf("BuildUserDirectories: %v", err)
	}
	return d
}

func TestBuildUserDirectoriesBijectionByEmail(t *testing.T) {
	d := sampleDirectories(t)

	ut := UserTranslator{Mode: UserStrict}
	s1, err := ut.To1("alice", Context{Directories: d})
	if err != nil {
		t.Fatalf("To1(alice): %v", err)
	}
	if s1 != "alice1" {
		t.Fatalf("To1(alice) = %q, want alice1", s1)
	}

	s0, err := ut.To0("alice1", Context{Directories: d})
	if err != nil {
		t.Fatalf("To0(alice1): %v", err)
	}
	if s0 != "alice" {
		t.Fatalf("To0(alice1) = %q, want alice", s0)
	}
}

func TestUserTranslatorUnmatchedSets(t *testing.T) {
	d := sampleDirectories(t)

	if !contains(d.UnmatchedSide0, "bob") {
		t.Fatalf("expected bob in UnmatchedSide0, got %v", d.UnmatchedSide0)
	}
	if !contains(d.UnmatchedSide1, "carol1") {
		t.Fatalf("expected carol1 in UnmatchedSide1, got %v", d.UnmatchedSide1)
	}
}

func TestUserTranslatorStrictFailsOnUnknown(t *testing.T) {
	d := sampleDirectories(t)
	ut := UserTranslator{Mode: UserStrict}
	if _, err := ut.To1("bob", Context{Directories: d}); err == nil {
		t.Fatal("expected strict mode to fail on unmatched side-0 user")
	}
	if _, err := ut.To0("carol1", Context{Directories: d}); err == nil {
		t.Fatal("expected strict mode to fail on unmatched side-1 user")
	}
}

func TestUserTranslatorLaxFallsBackToBookkeeping(t *testing.T) {
	d := sampleDirectories(t)
	ut := UserTranslator{Mode: UserLax}

	s1, err := ut.To1("bob", Context{Directories: d})
	if err != nil {
		t.Fatalf("To1(bob): %v", err)
	}
	if s1 != "bridge1" {
		t.Fatalf("To1(bob) lax = %q, want bridge1 (bookkeeping user)", s1)
	}

	s0, err := ut.To0("carol1", Context{Directories: d})
	if err != nil {
		t.Fatalf("To0(carol1): %v", err)
	}
	if s0 != "bridge" {
		t.Fatalf("To0(carol1) lax = %q, want bridge (bookkeeping user)", s0)
	}
}

func TestBuildUserDirectoriesFatalWhenBookkeepingUserMissing(t *testing.T) {
	side0 := []Side0User{{ID: "alice", Email: "alice@example.com"}}
	side1 := []Side1User{{Name: "alice1", Email: "alice@example.com"}}
	if _, err := BuildUserDirectories(side0, side1, "bridge", "bridge1"); err == nil {
		t.Fatal("expected error when bookkeeping user absent from side 0")
	}
}

func TestBuildUserDirectoriesFatalWhenBookkeepingEmailsMismatch(t *testing.T) {
	side0 := []Side0User{{ID: "bridge", Email: "bridge@example.com"}}
	side1 := []Side1User{{Name: "bridge1", Email: "different@example.com"}}
	if _, err := BuildUserDirectories(side0, side1, "bridge", "bridge1"); err == nil {
		t.Fatal("expected error when bookkeeping emails do not match across sides")
	}
}

func TestDuplicateEmailsAreFlaggedButKept(t *testing.T) {
	side0 := []Side0User{
		{ID: "bridge", Email: "bridge@example.com"},
		{ID: "alice", Email: "shared@example.com"},
		{ID: "alice2", Email: "shared@example.com"},
	}
	side1 := []Side1User{{Name: "bridge1", Email: "bridge@example.com"}}
	d, err := BuildUserDirectories(side0, side1, "bridge", "bridge1")
	if err != nil {
		t.Fatalf("BuildUserDirectories: %v", err)
	}
	dups := d.DuplicateEmailsSide0()
	ids := dups["shared@example.com"]
	if len(ids) != 2 {
		t.Fatalf("expected 2 duplicate ids for shared email, got %v", ids)
	}
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
