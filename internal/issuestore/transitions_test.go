package issuestore

import (
	"errors"
	"testing"

	"github.com/replicateio/tbridge/internal/types"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    types.Status
		to      types.Status
		wantErr bool
	}{
		{"no-op", types.StatusOpen, types.StatusOpen, false},
		{"new to open", types.StatusNew, types.StatusOpen, false},
		{"new skips to resolved", types.StatusNew, types.StatusResolved, true},
		{"open to resolved", types.StatusOpen, types.StatusResolved, false},
		{"resolved to verified", types.StatusResolved, types.StatusVerified, false},
		{"resolved reopen", types.StatusResolved, types.StatusOpen, false},
		{"closed reopen", types.StatusClosed, types.StatusOpen, false},
		{"verified to new", types.StatusVerified, types.StatusNew, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkTransition(%s, %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
			var transErr *TransitionError
			if tt.wantErr && !errors.As(err, &transErr) {
				t.Fatalf("expected *TransitionError, got %T", err)
			}
		})
	}
}

func TestCheckReadOnly(t *testing.T) {
	if err := checkReadOnly("IssueID"); err == nil {
		t.Fatal("expected error changing IssueID")
	}
	if err := checkReadOnly("Title"); err != nil {
		t.Fatalf("unexpected error changing Title: %v", err)
	}
}

func TestReconcileResolution(t *testing.T) {
	tests := []struct {
		name       string
		status     types.Status
		resolution string
		want       string
	}{
		{"resolved with no resolution synthesizes FIXED", types.StatusResolved, "", "FIXED"},
		{"resolved keeps explicit resolution", types.StatusResolved, "WONTFIX", "WONTFIX"},
		{"open clears resolution", types.StatusOpen, "FIXED", ""},
		{"new clears resolution", types.StatusNew, "FIXED", ""},
		{"verified with no resolution synthesizes FIXED", types.StatusVerified, "", "FIXED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconcileResolution(tt.status, tt.resolution); got != tt.want {
				t.Fatalf("reconcileResolution(%s, %q) = %q, want %q", tt.status, tt.resolution, got, tt.want)
			}
		})
	}
}

func TestApplyInvariantsOrder(t *testing.T) {
	issue := types.Issue{IssueID: "ISSUE-1", Status: types.StatusOpen, Extra: map[string]string{}}

	// read-only check fires before transition check even when both would fail.
	_, _, err := applyInvariants(issue, "alice", []Change{{Field: "IssueID", OldValue: "ISSUE-1", NewValue: "ISSUE-2"}}, nil)
	var roErr *ReadOnlyFieldError
	if !errors.As(err, &roErr) {
		t.Fatalf("expected *ReadOnlyFieldError, got %T (%v)", err, err)
	}

	_, _, err = applyInvariants(issue, "alice", []Change{{Field: "Status", OldValue: "open", NewValue: "new"}}, nil)
	var transErr *TransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("expected *TransitionError, got %T (%v)", err, err)
	}

	status, resolution, err := applyInvariants(issue, "alice", []Change{{Field: "Status", OldValue: "open", NewValue: "resolved"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != types.StatusResolved {
		t.Fatalf("status = %s, want resolved", status)
	}
	if resolution != defaultSynthesizedResolution {
		t.Fatalf("resolution = %q, want synthesized default", resolution)
	}

	permErr := errors.New("not in bug group")
	_, _, err = applyInvariants(issue, "alice", []Change{{Field: "Status", OldValue: "open", NewValue: "resolved"}},
		func(user string, issue types.Issue) error { return permErr })
	if !errors.Is(err, permErr) {
		t.Fatalf("expected permission error to propagate, got %v", err)
	}
}
