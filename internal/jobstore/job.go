package jobstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/replicateio/tbridge/internal/types"
)

// NotFoundError is returned when a job or changelist does not exist
// on side 1.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("jobstore: %s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// GetJob fetches a job record by name.
func (c *Client) GetJob(ctx context.Context, name string) (types.Job, error) {
	out, err := c.run(ctx, []string{"job", "-o", name}, nil)
	if err != nil {
		if isMissingJobFailure(err) {
			return types.Job{}, &NotFoundError{Kind: "job", ID: name}
		}
		return types.Job{}, fmt.Errorf("jobstore: get_job(%s): %w", name, err)
	}
	recs, err := decodeAllRecords(out)
	if err != nil || len(recs) == 0 {
		return types.Job{}, &NotFoundError{Kind: "job", ID: name}
	}
	fields := map[string]string(recs[0])
	return types.Job{Name: fields["Job"], Fields: fields}, nil
}

// ListJobNames lists every job name known to the job store, in the
// order the server reports them, starting immediately after `after`
// when resuming a prior partial pass (empty lists from the start).
// This drives the migrate and check_jobs CLI commands, the only
// callers that need a bulk enumeration rather than a single lookup.
func (c *Client) ListJobNames(ctx context.Context, after string) ([]string, error) {
	args := []string{"jobs", "-o"}
	out, err := c.run(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list_job_names: %w", err)
	}
	recs, err := decodeAllRecords(out)
	if err != nil {
		return nil, fmt.Errorf("jobstore: decode jobs list: %w", err)
	}

	var names []string
	skipping := after != ""
	for _, rec := range recs {
		name := rec["Job"]
		if name == "" {
			continue
		}
		if skipping {
			if name == after {
				skipping = false
			}
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func isMissingJobFailure(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(strings.ToLower(cmdErr.Stderr), "no such job")
}

// GetChangelist fetches a side-1 changelist by number.
func (c *Client) GetChangelist(ctx context.Context, number int) (types.Changelist, error) {
	out, err := c.run(ctx, []string{"describe", "-s", strconv.Itoa(number)}, nil)
	if err != nil {
		if isMissingChangeFailure(err) {
			return types.Changelist{}, &NotFoundError{Kind: "changelist", ID: strconv.Itoa(number)}
		}
		return types.Changelist{}, fmt.Errorf("jobstore: get_changelist(%d): %w", number, err)
	}
	recs, err := decodeAllRecords(out)
	if err != nil || len(recs) == 0 {
		return types.Changelist{}, &NotFoundError{Kind: "changelist", ID: strconv.Itoa(number)}
	}
	rec := recs[0]
	cl := types.Changelist{
		Change:      number,
		User:        rec["user"],
		Client:      rec["client"],
		Description: rec["desc"],
		Status:      rec["status"],
	}
	if raw := rec["time"]; raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cl.Date = time.Unix(secs, 0).UTC()
		}
	}
	return cl, nil
}

func isMissingChangeFailure(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := strings.ToLower(cmdErr.Stderr)
	return strings.Contains(msg, "no such changelist") || strings.Contains(msg, "invalid changelist")
}

// ErrChangelistRenumbered signals that a fix list named a pending
// changelist that no longer exists under that number by the time it
// was described: the server renumbers a pending changelist on submit,
// and this can race a job's fix listing. The caller retries the whole
// listing once; it is not a transport failure.
var ErrChangelistRenumbered = errors.New("jobstore: changelist renumbered mid-fix-listing")

// FixesForJob lists the changes fixing a job, each resolved to its
// current open/closed/suspended status via its changelist. A
// changelist that vanishes between the fix list and the describe call
// (ErrChangelistRenumbered) aborts the whole listing so the caller can
// retry it fresh rather than return a partial, possibly stale result.
func (c *Client) FixesForJob(ctx context.Context, jobname string) ([]types.Fix, error) {
	out, err := c.run(ctx, []string{"fixes", "-j", jobname}, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: fixes_for_job(%s): %w", jobname, err)
	}
	recs, err := decodeAllRecords(out)
	if err != nil {
		return nil, fmt.Errorf("jobstore: decode fixes(%s): %w", jobname, err)
	}

	fixes := make([]types.Fix, 0, len(recs))
	for _, rec := range recs {
		change, _ := strconv.Atoi(rec["change"])
		if change == 0 {
			continue
		}
		cl, err := c.GetChangelist(ctx, change)
		if err != nil {
			if IsNotFound(err) {
				return nil, ErrChangelistRenumbered
			}
			return nil, fmt.Errorf("jobstore: fixes_for_job(%s): describe %d: %w", jobname, change, err)
		}
		fixes = append(fixes, types.Fix{
			Change: change,
			User:   rec["user"],
			Client: rec["client"],
			Status: fixStatusForChangelist(cl),
			Date:   cl.Date,
		})
	}
	return fixes, nil
}

// fixStatusForChangelist derives a fix's mirrored status from its
// changelist's submission state: pending is open, submitted is closed,
// anything else (shelved, etc.) is suspended.
func fixStatusForChangelist(cl types.Changelist) types.FixStatus {
	switch cl.Status {
	case "submitted":
		return types.FixClosed
	case "pending":
		return types.FixOpen
	default:
		return types.FixSuspended
	}
}
