package replicator

import (
	"context"
	"errors"
	"testing"

	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/types"
)

func newTestEngine(issues *fakeIssueStore, jobs *fakeJobStore, notify *fakeNotifier) *Engine {
	cfg := Config{
		RID:                  "tbridge1",
		SID:                  "P4DTI",
		FieldMap:             identityFieldMap(),
		ConflictPolicy:       PolicySide0Wins,
		FixesEnabled:         false,
		BookkeepingSide0ID:   "bookkeeper",
		BookkeepingSide1User: "bookkeeper1",
	}
	return NewEngine(issues, jobs, cfg, notify)
}

func TestPollDatabasesIssueOnlyPropagatesToJob(t *testing.T) {
	issues := newFakeIssueStore()
	issues.issues["I1"] = types.Issue{IssueID: "I1", Title: "updated title", Status: types.StatusOpen}
	issues.links = []types.LinkRow{{IssueID: "I1", JobName: "J1"}}
	issues.changedIssues = []types.Issue{issues.issues["I1"]}

	jobs := newFakeJobStore()
	jobs.jobs["J1"] = types.Job{Name: "J1", Fields: map[string]string{"Job": "J1", "P4DTI-title": "old title"}}

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	result, err := e.PollDatabases(context.Background())
	if err != nil {
		t.Fatalf("PollDatabases() error = %v", err)
	}
	if result.Propagated0to1 != 1 {
		t.Fatalf("Propagated0to1 = %d, want 1", result.Propagated0to1)
	}
	if got := jobs.jobs["J1"].Fields["P4DTI-title"]; got != "updated title" {
		t.Fatalf("job title = %q, want %q", got, "updated title")
	}
	if jobs.jobs["J1"].Fields["P4DTI-status"] != "open" {
		t.Fatalf("job status not propagated: %+v", jobs.jobs["J1"].Fields)
	}
}

func TestPollDatabasesJobOnlyPropagatesToIssue(t *testing.T) {
	issues := newFakeIssueStore()
	issues.issues["I1"] = types.Issue{IssueID: "I1", Title: "old title", Status: types.StatusOpen, Extra: map[string]string{}}
	issues.links = []types.LinkRow{{IssueID: "I1", JobName: "J1"}}

	jobs := newFakeJobStore()
	job := types.Job{Name: "J1", Fields: map[string]string{"Job": "J1", "P4DTI-title": "new title from job", "P4DTI-status": "open"}}
	jobs.jobs["J1"] = job
	jobs.changedJobs = []types.Job{job}

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	result, err := e.PollDatabases(context.Background())
	if err != nil {
		t.Fatalf("PollDatabases() error = %v", err)
	}
	if result.Propagated1to0 != 1 {
		t.Fatalf("Propagated1to0 = %d, want 1", result.Propagated1to0)
	}
	if got := issues.issues["I1"].Title; got != "new title from job" {
		t.Fatalf("issue title = %q, want %q", got, "new title from job")
	}
}

func TestPollDatabasesConflictDefaultPolicyOverwritesJob(t *testing.T) {
	issues := newFakeIssueStore()
	issues.issues["I1"] = types.Issue{IssueID: "I1", Title: "issue wins", Status: types.StatusOpen, Extra: map[string]string{}}
	issues.links = []types.LinkRow{{IssueID: "I1", JobName: "J1"}}
	issues.changedIssues = []types.Issue{issues.issues["I1"]}

	jobs := newFakeJobStore()
	job := types.Job{Name: "J1", Fields: map[string]string{"Job": "J1", "P4DTI-title": "job also changed", "P4DTI-status": "open"}}
	jobs.jobs["J1"] = job
	jobs.changedJobs = []types.Job{job}

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	result, err := e.PollDatabases(context.Background())
	if err != nil {
		t.Fatalf("PollDatabases() error = %v", err)
	}
	if result.ConflictsFound != 1 {
		t.Fatalf("ConflictsFound = %d, want 1", result.ConflictsFound)
	}
	if got := jobs.jobs["J1"].Fields["P4DTI-title"]; got != "issue wins" {
		t.Fatalf("job title after conflict = %q, want issue value to win", got)
	}
	if len(notify.conflicts) != 1 || len(notify.overwrites) != 1 {
		t.Fatalf("notify calls = %+v, want exactly one conflict and one overwrite", notify)
	}
}

func TestPollDatabasesPairsNewIssueWithNoLink(t *testing.T) {
	issues := newFakeIssueStore()
	issues.issues["I1"] = types.Issue{IssueID: "I1", Title: "brand new", Status: types.StatusNew, Extra: map[string]string{}}
	issues.changedIssues = []types.Issue{issues.issues["I1"]}

	jobs := newFakeJobStore()
	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	if _, err := e.PollDatabases(context.Background()); err != nil {
		t.Fatalf("PollDatabases() error = %v", err)
	}
	link, err := issues.LinkForIssue(context.Background(), "I1")
	if err != nil {
		t.Fatalf("expected a link to have been created, got error: %v", err)
	}
	if _, ok := jobs.jobs[link.JobName]; !ok {
		t.Fatalf("expected job %q to have been created", link.JobName)
	}
}

func TestPollDatabasesAdoptsJobWithSingleLinkRow(t *testing.T) {
	issues := newFakeIssueStore()
	jobs := newFakeJobStore()
	job := types.Job{Name: "J1", Fields: map[string]string{"Job": "J1", "P4DTI-title": "adopted job"}}
	jobs.jobs["J1"] = job
	jobs.changedJobs = []types.Job{job}

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	if _, err := e.PollDatabases(context.Background()); err != nil {
		t.Fatalf("PollDatabases() error = %v", err)
	}

	var links int
	for _, l := range issues.links {
		if l.JobName == "J1" {
			links++
		}
	}
	if links != 1 {
		t.Fatalf("link rows for adopted job J1 = %d, want exactly 1", links)
	}
}

func TestPollDatabasesAbandonsCycleOnDispatchFailure(t *testing.T) {
	issues := newFakeIssueStore()
	issues.issues["I1"] = types.Issue{IssueID: "I1", Title: "t", Status: types.StatusOpen}
	issues.links = []types.LinkRow{{IssueID: "I1", JobName: "J1"}}
	issues.changedIssues = []types.Issue{issues.issues["I1"]}

	jobs := newFakeJobStore()
	jobs.jobs["J1"] = types.Job{Name: "J1", Fields: map[string]string{"Job": "J1"}}
	jobs.updateErrByJob["J1"] = errors.New("simulated transport failure")

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	if _, err := e.PollDatabases(context.Background()); err == nil {
		t.Fatal("PollDatabases() error = nil, want failure from the job update")
	}
	if len(issues.abandons) != 1 {
		t.Fatalf("abandons = %d, want 1", len(issues.abandons))
	}
}

func TestPollDatabasesFixMirroringUsesJobOwnFixListNotGlobalChangelists(t *testing.T) {
	issues := newFakeIssueStore()
	issues.issues["I1"] = types.Issue{IssueID: "I1", Title: "t", Status: types.StatusOpen, Extra: map[string]string{}}
	issues.links = []types.LinkRow{{IssueID: "I1", JobName: "J1"}}
	// Mirrored in a prior cycle, on a changelist this cycle does not touch.
	issues.fixes["I1"] = []types.Fix{{Change: 99, Issue: "I1", Status: types.FixOpen}}

	jobs := newFakeJobStore()
	job := types.Job{Name: "J1", Fields: map[string]string{"Job": "J1"}}
	jobs.jobs["J1"] = job
	jobs.changedJobs = []types.Job{job}
	// The job's own fix list still carries change 99; it must survive.
	jobs.fixes["J1"] = []types.Fix{{Change: 99, Status: types.FixOpen}}
	// A changelist touched this cycle by some other job entirely; must not
	// leak onto I1's mirrored fixes.
	jobs.changedChangelists = []types.Changelist{{Change: 55, Status: "submitted"}}

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)
	e.Cfg.FixesEnabled = true

	if _, err := e.PollDatabases(context.Background()); err != nil {
		t.Fatalf("PollDatabases() error = %v", err)
	}

	got := issues.fixes["I1"]
	if len(got) != 1 || got[0].Change != 99 {
		t.Fatalf("fixes for I1 = %+v, want exactly change 99 preserved and no fix for change 55", got)
	}
}

func TestPollDatabasesRetriesOnceOnRenumberedChangelist(t *testing.T) {
	issues := newFakeIssueStore()
	issues.issues["I1"] = types.Issue{IssueID: "I1", Title: "t", Status: types.StatusOpen, Extra: map[string]string{}}
	issues.links = []types.LinkRow{{IssueID: "I1", JobName: "J1"}}

	jobs := newFakeJobStore()
	job := types.Job{Name: "J1", Fields: map[string]string{"Job": "J1"}}
	jobs.jobs["J1"] = job
	jobs.changedJobs = []types.Job{job}
	jobs.fixes["J1"] = []types.Fix{{Change: 43, Status: types.FixClosed}}
	jobs.fixesErrByJob["J1"] = jobstore.ErrChangelistRenumbered
	jobs.fixesErrRemain["J1"] = 1 // fails once, then succeeds on the retry

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)
	e.Cfg.FixesEnabled = true

	if _, err := e.PollDatabases(context.Background()); err != nil {
		t.Fatalf("PollDatabases() error = %v", err)
	}
	got := issues.fixes["I1"]
	if len(got) != 1 || got[0].Change != 43 {
		t.Fatalf("fixes for I1 = %+v, want change 43 mirrored after the single retry", got)
	}
	if len(notify.failures) != 0 {
		t.Fatalf("notify.failures = %v, want none: the retry should have succeeded silently", notify.failures)
	}
}

func TestPollDatabasesSkipsJobAndReportsOnRepeatedRenumbering(t *testing.T) {
	issues := newFakeIssueStore()
	issues.issues["I1"] = types.Issue{IssueID: "I1", Title: "t", Status: types.StatusOpen, Extra: map[string]string{}}
	issues.links = []types.LinkRow{{IssueID: "I1", JobName: "J1"}}

	jobs := newFakeJobStore()
	job := types.Job{Name: "J1", Fields: map[string]string{"Job": "J1"}}
	jobs.jobs["J1"] = job
	jobs.changedJobs = []types.Job{job}
	jobs.fixesErrByJob["J1"] = jobstore.ErrChangelistRenumbered
	jobs.fixesErrRemain["J1"] = 2 // still racing after the single retry

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)
	e.Cfg.FixesEnabled = true

	if _, err := e.PollDatabases(context.Background()); err != nil {
		t.Fatalf("PollDatabases() error = %v, want the cycle to complete despite the skipped job", err)
	}
	if len(notify.failures) != 1 {
		t.Fatalf("notify.failures = %v, want exactly one reported failure", notify.failures)
	}
}
