package issuestore

import (
	"strings"

	"github.com/replicateio/tbridge/internal/types"
)

// transitionTable lists the status transitions this adapter allows;
// a transition not present here is rejected with a TransitionError.
// closed->open (reopen) is intentionally allowed; new must pass
// through open before resolution.
var transitionTable = map[types.Status][]types.Status{
	types.StatusNew:      {types.StatusOpen},
	types.StatusOpen:     {types.StatusResolved, types.StatusClosed},
	types.StatusResolved: {types.StatusVerified, types.StatusOpen, types.StatusClosed},
	types.StatusVerified: {types.StatusClosed, types.StatusOpen},
	types.StatusClosed:   {types.StatusOpen},
}

func transitionAllowed(from, to types.Status) bool {
	if from == to {
		return true
	}
	for _, candidate := range transitionTable[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// readOnlyFields cannot be changed by any update, whatever the
// issue's status.
var readOnlyFields = map[string]bool{
	"IssueID":    true,
	"CreationTS": true,
}

// appendOnlyFields must extend their previous value by exact prefix
// match; the native activity log field is the canonical example.
var appendOnlyFields = map[string]bool{
	"Description": false, // configurable per deployment; disabled by default here
}

// statesRequiringResolution lists statuses that require a non-empty
// resolution value; entering one with an empty resolution synthesises
// "FIXED" rather than failing.
var statesRequiringResolution = map[types.Status]bool{
	types.StatusResolved: true,
	types.StatusVerified: true,
	types.StatusClosed:   true,
}

// statesForbiddingResolution lists statuses that require resolution
// to be cleared.
var statesForbiddingResolution = map[types.Status]bool{
	types.StatusNew:  true,
	types.StatusOpen: true,
}

const defaultSynthesizedResolution = "FIXED"

// checkReadOnly rejects a change to a read-only field.
func checkReadOnly(field string) error {
	if readOnlyFields[field] {
		return &ReadOnlyFieldError{Field: field}
	}
	return nil
}

// checkAppendOnly rejects a change to an append-only field whose new
// value does not extend the old value by exact prefix match.
func checkAppendOnly(field, oldValue, newValue string) error {
	if !appendOnlyFields[field] {
		return nil
	}
	if !strings.HasPrefix(newValue, oldValue) {
		return &AppendOnlyFieldError{Field: field}
	}
	return nil
}

// checkTransition rejects a status change not present in
// transitionTable.
func checkTransition(from, to types.Status) error {
	if from == to {
		return nil
	}
	if !transitionAllowed(from, to) {
		return &TransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// reconcileResolution synthesises or clears the resolution field
// depending on the target status, per the invariant-enforcement order
// in the update path: resolution reconciliation runs after the
// transition check and before the permission check.
func reconcileResolution(status types.Status, resolution string) string {
	if statesRequiringResolution[status] && resolution == "" {
		return defaultSynthesizedResolution
	}
	if statesForbiddingResolution[status] {
		return ""
	}
	return resolution
}

// Change is one field mutation requested by an update call.
type Change struct {
	Field    string
	OldValue string
	NewValue string
}

// PermissionChecker is a narrow hook the issue store's update path uses
// to check an editing user against bug-group/product-group
// membership; callers supply the predicate because group membership
// is deployment-specific and out of this adapter's scope to define.
type PermissionChecker func(user string, issue types.Issue) error

// applyInvariants runs the full invariant-enforcement order described
// for issue updates: read-only check, append-only check, transition
// check, resolution reconciliation, then permission check. Each
// failure is a distinguishable typed error.
func applyInvariants(issue types.Issue, user string, changes []Change, checkPerm PermissionChecker) (types.Status, string, error) {
	newStatus := issue.Status
	resolution := issue.Extra["resolution"]

	for _, c := range changes {
		if err := checkReadOnly(c.Field); err != nil {
			return issue.Status, resolution, err
		}
		if err := checkAppendOnly(c.Field, c.OldValue, c.NewValue); err != nil {
			return issue.Status, resolution, err
		}
		if c.Field == "Status" {
			newStatus = types.Status(c.NewValue)
		}
		if c.Field == "resolution" {
			resolution = c.NewValue
		}
	}

	if err := checkTransition(issue.Status, newStatus); err != nil {
		return issue.Status, resolution, err
	}

	resolution = reconcileResolution(newStatus, resolution)

	if checkPerm != nil {
		if err := checkPerm(user, issue); err != nil {
			return issue.Status, resolution, err
		}
	}

	return newStatus, resolution, nil
}
