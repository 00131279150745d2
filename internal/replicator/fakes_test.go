package replicator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/translate"
	"github.com/replicateio/tbridge/internal/types"
)

// fakeIssueStore is an in-memory IssueStore double, the side-0 analog
// of the package's own mockTracker-style test double.
type fakeIssueStore struct {
	issues map[string]types.Issue
	links  []types.LinkRow
	fixes  map[string][]types.Fix
	specs  map[string][]string
	cls    map[int]types.Changelist
	users  []translate.Side0User

	mark     time.Time
	nextCid  int64
	abandons []int64

	changedIssues []types.Issue

	updateErrByIssue map[string]error
	nextIssueSeq     int
}

func newFakeIssueStore() *fakeIssueStore {
	return &fakeIssueStore{
		issues:           make(map[string]types.Issue),
		fixes:            make(map[string][]types.Fix),
		specs:            make(map[string][]string),
		cls:              make(map[int]types.Changelist),
		updateErrByIssue: make(map[string]error),
	}
}

func (f *fakeIssueStore) PollStart(ctx context.Context) error { return nil }
func (f *fakeIssueStore) PollEnd(ctx context.Context) error   { return nil }

func (f *fakeIssueStore) LastAcknowledgedMark(ctx context.Context) (time.Time, error) {
	return f.mark, nil
}

func (f *fakeIssueStore) BeginCycle(ctx context.Context, start time.Time) (int64, error) {
	f.nextCid++
	return f.nextCid, nil
}

func (f *fakeIssueStore) CompleteCycle(ctx context.Context, id int64, end time.Time) error {
	f.mark = end
	return nil
}

func (f *fakeIssueStore) AbandonCycle(ctx context.Context, id int64) error {
	f.abandons = append(f.abandons, id)
	return nil
}

func (f *fakeIssueStore) Issue(ctx context.Context, id string) (types.Issue, error) {
	iss, ok := f.issues[id]
	if !ok {
		return types.Issue{}, &issuestore.NotFoundError{Kind: "issue", ID: id}
	}
	return iss, nil
}

func (f *fakeIssueStore) AllIssuesSince(ctx context.Context, t time.Time) ([]types.Issue, error) {
	var out []types.Issue
	for _, iss := range f.issues {
		out = append(out, iss)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueID < out[j].IssueID })
	return out, nil
}

func (f *fakeIssueStore) ChangedIssuesSince(ctx context.Context, t, nowFence time.Time) ([]types.Issue, error) {
	return f.changedIssues, nil
}

func (f *fakeIssueStore) Update(ctx context.Context, issueID, user string, changes []issuestore.Change, checkPerm issuestore.PermissionChecker) error {
	if err := f.updateErrByIssue[issueID]; err != nil {
		return err
	}
	iss, ok := f.issues[issueID]
	if !ok {
		return &issuestore.NotFoundError{Kind: "issue", ID: issueID}
	}
	for _, c := range changes {
		setIssueFieldValue(&iss, c.Field, c.NewValue)
	}
	f.issues[issueID] = iss
	return nil
}

func (f *fakeIssueStore) NewIssue(ctx context.Context, issue types.Issue, jobname string) (types.Issue, error) {
	f.nextIssueSeq++
	if issue.IssueID == "" {
		issue.IssueID = fmtIssueID(f.nextIssueSeq)
	}
	issue.CreationTS = time.Unix(int64(f.nextIssueSeq), 0).UTC()
	if issue.Extra == nil {
		issue.Extra = make(map[string]string)
	}
	f.issues[issue.IssueID] = issue
	if jobname != "" {
		if err := f.insertLink(types.LinkRow{IssueID: issue.IssueID, JobName: jobname}); err != nil {
			return types.Issue{}, err
		}
	}
	return issue, nil
}

func fmtIssueID(n int) string {
	return "ISSUE-" + strconv.Itoa(n)
}

func (f *fakeIssueStore) LinkForIssue(ctx context.Context, issueID string) (types.LinkRow, error) {
	for _, l := range f.links {
		if l.IssueID == issueID {
			return l, nil
		}
	}
	return types.LinkRow{}, &issuestore.NotFoundError{Kind: "link", ID: issueID}
}

func (f *fakeIssueStore) LinkForJob(ctx context.Context, jobname string) (types.LinkRow, error) {
	for _, l := range f.links {
		if l.JobName == jobname {
			return l, nil
		}
	}
	return types.LinkRow{}, &issuestore.NotFoundError{Kind: "link", ID: jobname}
}

func (f *fakeIssueStore) CreateLink(ctx context.Context, l types.LinkRow) error {
	return f.insertLink(l)
}

// insertLink mimics the real store's (issue_id, rid, sid) primary key on
// the links table: a second insert for an issue that already has a link
// row is a duplicate-key failure, not a silent append.
func (f *fakeIssueStore) insertLink(l types.LinkRow) error {
	for _, existing := range f.links {
		if existing.IssueID == l.IssueID {
			return fmt.Errorf("fakeIssueStore: duplicate link for issue %s", l.IssueID)
		}
	}
	f.links = append(f.links, l)
	return nil
}

func (f *fakeIssueStore) RenameLink(ctx context.Context, issueID, newJobname string) error {
	for i, l := range f.links {
		if l.IssueID == issueID {
			f.links[i].JobName = newJobname
			return nil
		}
	}
	return &issuestore.NotFoundError{Kind: "link", ID: issueID}
}

func (f *fakeIssueStore) FixesForIssue(ctx context.Context, issueID string) ([]types.Fix, error) {
	return f.fixes[issueID], nil
}

func (f *fakeIssueStore) AddFix(ctx context.Context, fx types.Fix) error {
	f.fixes[fx.Issue] = append(f.fixes[fx.Issue], fx)
	return nil
}

func (f *fakeIssueStore) UpdateFix(ctx context.Context, issueID string, change int, status string) error {
	for i, fx := range f.fixes[issueID] {
		if fx.Change == change {
			f.fixes[issueID][i].Status = types.FixStatus(status)
			return nil
		}
	}
	return &issuestore.NotFoundError{Kind: "fix", ID: issueID}
}

func (f *fakeIssueStore) DeleteFix(ctx context.Context, issueID string, change int) error {
	kept := f.fixes[issueID][:0]
	for _, fx := range f.fixes[issueID] {
		if fx.Change != change {
			kept = append(kept, fx)
		}
	}
	f.fixes[issueID] = kept
	return nil
}

func (f *fakeIssueStore) FilespecsForIssue(ctx context.Context, issueID string) ([]string, error) {
	return f.specs[issueID], nil
}

func (f *fakeIssueStore) AddFilespec(ctx context.Context, issueID, filespec string) error {
	f.specs[issueID] = append(f.specs[issueID], filespec)
	return nil
}

func (f *fakeIssueStore) DeleteFilespec(ctx context.Context, issueID, filespec string) error {
	kept := f.specs[issueID][:0]
	for _, s := range f.specs[issueID] {
		if s != filespec {
			kept = append(kept, s)
		}
	}
	f.specs[issueID] = kept
	return nil
}

func (f *fakeIssueStore) UpsertChangelist(ctx context.Context, cl types.Changelist) error {
	f.cls[cl.Change] = cl
	return nil
}

func (f *fakeIssueStore) Side0Users(ctx context.Context) ([]translate.Side0User, error) {
	return f.users, nil
}

// fakeJobStore is an in-memory JobStore double.
type fakeJobStore struct {
	jobs     map[string]types.Job
	counters map[string]int
	spec     types.JobSpec
	users    []translate.Side1User
	fixes    map[string][]types.Fix

	latestEntry int

	changedJobs        []types.Job
	changedChangelists []types.Changelist
	nextCounterValue   int

	updateErrByJob map[string]error
	nextJobSeq     int

	// fixesErrByJob, when set for a job, is returned by FixesForJob and
	// decremented until it reaches zero, then cleared - modeling a race
	// that resolves itself after a bounded number of retries.
	fixesErrByJob  map[string]error
	fixesErrRemain map[string]int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:           make(map[string]types.Job),
		counters:       make(map[string]int),
		fixes:          make(map[string][]types.Fix),
		updateErrByJob: make(map[string]error),
		fixesErrByJob:  make(map[string]error),
		fixesErrRemain: make(map[string]int),
	}
}

// FixesForJob returns the canned fix list configured for this job. If
// fixesErrByJob has a pending failure count for this job, it returns
// that error instead and decrements the count, so a test can model
// either a single retry that then succeeds (count 1) or a race that
// never resolves within the single retry the caller attempts (count
// 2+).
func (f *fakeJobStore) FixesForJob(ctx context.Context, jobname string) ([]types.Fix, error) {
	if f.fixesErrRemain[jobname] > 0 {
		f.fixesErrRemain[jobname]--
		return nil, f.fixesErrByJob[jobname]
	}
	return f.fixes[jobname], nil
}

func (f *fakeJobStore) GetCounter(ctx context.Context, name string) (int, error) {
	return f.counters[name], nil
}

func (f *fakeJobStore) SetCounter(ctx context.Context, name string, value int) error {
	f.counters[name] = value
	return nil
}

func (f *fakeJobStore) EnsureCounter(ctx context.Context, name string) error {
	if _, ok := f.counters[name]; !ok {
		f.counters[name] = 0
	}
	return nil
}

func (f *fakeJobStore) LatestLogEntry(ctx context.Context) (int, error) {
	return f.latestEntry, nil
}

func (f *fakeJobStore) ChangedJobs(ctx context.Context, rid string, lastEntry int, jobUpdates map[string]int, owns func(job types.Job) bool, isNew jobstore.NewJobPredicate) ([]types.Job, []types.Changelist, int, error) {
	return f.changedJobs, f.changedChangelists, f.nextCounterValue, nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, name string) (types.Job, error) {
	job, ok := f.jobs[name]
	if !ok {
		return types.Job{}, &jobstore.NotFoundError{Kind: "job", ID: name}
	}
	return job, nil
}

func (f *fakeJobStore) ListJobNames(ctx context.Context, after string) ([]string, error) {
	var names []string
	for n := range f.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	if after == "" {
		return names, nil
	}
	for i, n := range names {
		if n == after {
			return names[i+1:], nil
		}
	}
	return names, nil
}

func (f *fakeJobStore) UpdateJob(ctx context.Context, job types.Job, changes map[string]string, force bool) (types.Job, jobstore.Ack, error) {
	if err := f.updateErrByJob[job.Name]; err != nil {
		return types.Job{}, jobstore.AckUnknown, err
	}
	name := job.Name
	if name == "new" || name == "" {
		f.nextJobSeq++
		name = fmtJobName(f.nextJobSeq)
	}
	merged := make(map[string]string, len(job.Fields)+len(changes))
	for k, v := range job.Fields {
		merged[k] = v
	}
	for k, v := range changes {
		merged[k] = v
	}
	merged["Job"] = name
	updated := types.Job{Name: name, Fields: merged}
	f.jobs[name] = updated
	return updated, jobstore.AckSaved, nil
}

func fmtJobName(n int) string {
	return "JOB-" + strconv.Itoa(n)
}

func (f *fakeJobStore) GetJobSpec(ctx context.Context) (types.JobSpec, error) {
	return f.spec, nil
}

func (f *fakeJobStore) InstallJobSpec(ctx context.Context, spec types.JobSpec) error {
	f.spec = spec
	return nil
}

func (f *fakeJobStore) Side1Users(ctx context.Context) ([]translate.Side1User, error) {
	return f.users, nil
}

// fakeNotifier records every notification it receives.
type fakeNotifier struct {
	conflicts []string
	overwrites []string
	failures   []string
	reports    int
}

func (n *fakeNotifier) NotifyConflict(ctx context.Context, issueID, jobname string, policy ConflictPolicy) error {
	n.conflicts = append(n.conflicts, issueID+"/"+jobname)
	return nil
}

func (n *fakeNotifier) NotifyOverwrite(ctx context.Context, issueID, jobname string, snapshot types.Issue) error {
	n.overwrites = append(n.overwrites, issueID+"/"+jobname)
	return nil
}

func (n *fakeNotifier) NotifyFailure(ctx context.Context, stage string, err error) error {
	n.failures = append(n.failures, stage)
	return nil
}

func (n *fakeNotifier) NotifyStartupReport(ctx context.Context, dirs *translate.UserDirectories) error {
	n.reports++
	return nil
}

// identityTranslator passes values through unchanged; it stands in for
// whichever real translator a deployment's field map configures, so
// tests can assert on field values directly without accounting for a
// specific translator's escaping rules.
type identityTranslator struct{}

func (identityTranslator) To1(v string, _ translate.Context) (string, error) { return v, nil }
func (identityTranslator) To0(v string, _ translate.Context) (string, error) { return v, nil }

// identityFieldMap maps Title/Status straight across, enough to
// exercise the dispatch paths without pulling in a specific
// translator's value-shape rules.
func identityFieldMap() []FieldMapping {
	t := identityTranslator{}
	return []FieldMapping{
		{IssueField: "Title", JobField: "P4DTI-title", Translator: t},
		{IssueField: "Status", JobField: "P4DTI-status", Translator: t},
	}
}
