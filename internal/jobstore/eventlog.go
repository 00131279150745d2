package jobstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/replicateio/tbridge/internal/types"
)

// CounterName is the side-1 named counter holding the last consumed
// event-log entry number for this replicator instance.
func CounterName(rid string) string { return fmt.Sprintf("P4DTI-%s", rid) }

// GetCounter reads the named counter's current value.
func (c *Client) GetCounter(ctx context.Context, name string) (int, error) {
	out, err := c.run(ctx, []string{"counter", name}, nil)
	if err != nil {
		return 0, fmt.Errorf("jobstore: get_counter(%s): %w", name, err)
	}
	recs, err := decodeAllRecords(out)
	if err != nil || len(recs) == 0 {
		return 0, nil
	}
	v, _ := strconv.Atoi(recs[0]["value"])
	return v, nil
}

// SetCounter writes the named counter's value.
func (c *Client) SetCounter(ctx context.Context, name string, value int) error {
	_, err := c.run(ctx, []string{"counter", name, strconv.Itoa(value)}, nil)
	if err != nil {
		return fmt.Errorf("jobstore: set_counter(%s, %d): %w", name, value, err)
	}
	return nil
}

// EnsureCounter initialises the named counter to zero if it does not
// already exist; it must never reset a counter that already has a
// value, since that would replay already-acknowledged event-log
// entries.
func (c *Client) EnsureCounter(ctx context.Context, name string) error {
	out, err := c.run(ctx, []string{"counter", "-e", name}, nil)
	if err != nil {
		return fmt.Errorf("jobstore: ensure_counter(%s): %w", name, err)
	}
	if strings.Contains(out, "no such counter") {
		return c.SetCounter(ctx, name, 0)
	}
	return nil
}

// logEntry is one parsed journal line: either a job reference or a
// changelist reference.
type logEntry struct {
	entryNum int
	jobName  string // set iff this entry references a job
	change   int    // set (>0) iff this entry references a changelist
}

// pollLogEntries reads journal entries strictly after `after`, up to
// and including the newest entry, in ascending order.
func (c *Client) pollLogEntries(ctx context.Context, after int) ([]logEntry, error) {
	out, err := c.run(ctx, []string{"journal", "-a", strconv.Itoa(after)}, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: poll_log_entries: %w", err)
	}
	recs, err := decodeAllRecords(out)
	if err != nil {
		return nil, fmt.Errorf("jobstore: decode journal: %w", err)
	}

	entries := make([]logEntry, 0, len(recs))
	for _, rec := range recs {
		num, _ := strconv.Atoi(rec["entry"])
		e := logEntry{entryNum: num}
		if job, ok := rec["job"]; ok {
			e.jobName = job
		}
		if ch, ok := rec["change"]; ok {
			e.change, _ = strconv.Atoi(ch)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LatestLogEntry returns the newest event-log entry number without
// resolving any job or changelist it references, for callers that only
// need to learn the current head (refresh resets the counter here
// rather than to zero, so it never replays log entries that predate
// the refresh itself).
func (c *Client) LatestLogEntry(ctx context.Context) (int, error) {
	entries, err := c.pollLogEntries(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("jobstore: latest_log_entry: %w", err)
	}
	head := 0
	for _, e := range entries {
		if e.entryNum > head {
			head = e.entryNum
		}
	}
	return head, nil
}

// NewJobPredicate decides whether a brand-new, unlinked job should be
// adopted for replication; the replicator core supplies this since
// the predicate is configuration, not adapter policy.
type NewJobPredicate func(job types.Job) bool

// ChangedJobs tails the event log for entries after the last
// acknowledged position, returning jobs and touched changelists for
// the current poll cycle along with the entry number to acknowledge
// once the cycle's writes are durable. jobUpdates is the replicator
// core's per-cycle bookkeeping of the core's own pending writes: a
// job-reference entry whose name has a positive count in jobUpdates is
// the event-log echo of a write this replicator just made, and is
// consumed (decremented) rather than replicated back. A job named
// "new" is the reserved placeholder used before the job store assigns
// a real name; seeing it in the log is always a protocol violation.
func (c *Client) ChangedJobs(ctx context.Context, rid string, lastEntry int, jobUpdates map[string]int, owns func(job types.Job) bool, isNew NewJobPredicate) ([]types.Job, []types.Changelist, int, error) {
	entries, err := c.pollLogEntries(ctx, lastEntry)
	if err != nil {
		return nil, nil, lastEntry, err
	}

	var jobs []types.Job
	seenJobs := make(map[string]bool)
	var changelists []types.Changelist
	seenChanges := make(map[int]bool)
	nextEntry := lastEntry

	for _, e := range entries {
		if e.entryNum > nextEntry {
			nextEntry = e.entryNum
		}
		switch {
		case e.jobName != "":
			if e.jobName == "new" {
				return nil, nil, lastEntry, fmt.Errorf("jobstore: event log referenced reserved job name %q", e.jobName)
			}
			if jobUpdates[e.jobName] > 0 {
				jobUpdates[e.jobName]--
				continue
			}
			if seenJobs[e.jobName] {
				continue
			}
			job, err := c.GetJob(ctx, e.jobName)
			if err != nil {
				if IsNotFound(err) {
					continue
				}
				return nil, nil, lastEntry, err
			}
			if owns(job) || isNew(job) {
				seenJobs[e.jobName] = true
				jobs = append(jobs, job)
			}
		case e.change != 0:
			if seenChanges[e.change] {
				continue
			}
			cl, err := c.GetChangelist(ctx, e.change)
			if err != nil {
				if IsNotFound(err) {
					continue // referenced-but-missing changelists are not fatal
				}
				return nil, nil, lastEntry, err
			}
			seenChanges[e.change] = true
			changelists = append(changelists, cl)
		}
	}

	return jobs, changelists, nextEntry, nil
}
