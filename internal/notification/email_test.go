package notification

import (
	"strings"
	"testing"

	"github.com/replicateio/tbridge/internal/translate"
)

func TestRenderStartupReportCleanDirectories(t *testing.T) {
	side0 := []translate.Side0User{{ID: "bookkeeper", Email: "bookkeeper@example.com"}}
	side1 := []translate.Side1User{{Name: "bookkeeper1", Email: "bookkeeper@example.com"}}
	dirs, err := translate.BuildUserDirectories(side0, side1, "bookkeeper", "bookkeeper1")
	if err != nil {
		t.Fatalf("build directories: %v", err)
	}

	body, err := renderStartupReport(dirs)
	if err != nil {
		t.Fatalf("renderStartupReport() error = %v", err)
	}
	if !strings.Contains(body, "matched cleanly") {
		t.Errorf("body = %q, want the clean-directories message", body)
	}
}

func TestRenderStartupReportListsUnmatchedAndDuplicates(t *testing.T) {
	side0 := []translate.Side0User{
		{ID: "bookkeeper", Email: "bookkeeper@example.com"},
		{ID: "alice", Email: "shared@example.com"},
		{ID: "bob", Email: "shared@example.com"},
		{ID: "orphan0", Email: "orphan0@example.com"},
	}
	side1 := []translate.Side1User{
		{Name: "bookkeeper1", Email: "bookkeeper@example.com"},
		{Name: "alice1", Email: "shared@example.com"},
		{Name: "carol1", Email: "shared@example.com"},
		{Name: "orphan1", Email: "orphan1@example.com"},
	}
	dirs, err := translate.BuildUserDirectories(side0, side1, "bookkeeper", "bookkeeper1")
	if err != nil {
		t.Fatalf("build directories: %v", err)
	}

	body, err := renderStartupReport(dirs)
	if err != nil {
		t.Fatalf("renderStartupReport() error = %v", err)
	}
	if !strings.Contains(body, "orphan0") {
		t.Errorf("body missing unmatched side-0 user: %q", body)
	}
	if !strings.Contains(body, "orphan1") {
		t.Errorf("body missing unmatched side-1 user: %q", body)
	}
	if !strings.Contains(body, "shared@example.com") {
		t.Errorf("body missing duplicate email: %q", body)
	}
}

func TestSortedCopyDoesNotMutateInput(t *testing.T) {
	in := []string{"c", "a", "b"}
	out := sortedCopy(in)
	if in[0] != "c" {
		t.Fatalf("sortedCopy mutated its input: %v", in)
	}
	if out[0] != "a" || out[1] != "b" || out[2] != "c" {
		t.Fatalf("sortedCopy() = %v, want sorted", out)
	}
}
