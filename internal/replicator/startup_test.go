package replicator

import (
	"context"
	"testing"

	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/translate"
	"github.com/replicateio/tbridge/internal/types"
)

func TestStartupInstallsAndValidatesJobspec(t *testing.T) {
	issues := newFakeIssueStore()
	issues.users = []translate.Side0User{{ID: "bookkeeper", Email: "bookkeeper@example.com"}}

	jobs := newFakeJobStore()
	jobs.users = []translate.Side1User{{Name: "bookkeeper1", Email: "bookkeeper@example.com"}}
	jobs.spec = types.JobSpec{Fields: []types.JobField{
		{Code: 101, Name: "Job", DataType: types.JobFieldWord, Persistence: types.PersistRequired},
	}}

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	target := jobstore.TargetJobSpec(nil)
	if err := e.Startup(context.Background(), target, StartupOptions{}); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	if warnings := jobstore.ValidateJobSpec(jobs.spec); len(warnings) != 0 {
		t.Fatalf("installed jobspec still fails validation: %v", warnings)
	}
	if _, ok := jobs.counters[jobstore.CounterName(e.Cfg.RID)]; !ok {
		t.Fatal("expected the event-log counter to be initialised")
	}
	if notify.reports != 1 {
		t.Fatalf("startup reports sent = %d, want 1", notify.reports)
	}
}

func TestStartupKeepJobspecSkipsInstall(t *testing.T) {
	issues := newFakeIssueStore()
	issues.users = []translate.Side0User{{ID: "bookkeeper", Email: "bookkeeper@example.com"}}
	jobs := newFakeJobStore()
	jobs.users = []translate.Side1User{{Name: "bookkeeper1", Email: "bookkeeper@example.com"}}
	jobs.spec = jobstore.TargetJobSpec(nil)

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	installedBefore := jobs.spec
	if err := e.Startup(context.Background(), types.JobSpec{}, StartupOptions{KeepJobspec: true}); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	if len(jobs.spec.Fields) != len(installedBefore.Fields) {
		t.Fatalf("jobspec changed despite KeepJobspec: %+v", jobs.spec)
	}
}

func TestStartupNeverResetsExistingCounter(t *testing.T) {
	issues := newFakeIssueStore()
	issues.users = []translate.Side0User{{ID: "bookkeeper", Email: "bookkeeper@example.com"}}
	jobs := newFakeJobStore()
	jobs.users = []translate.Side1User{{Name: "bookkeeper1", Email: "bookkeeper@example.com"}}
	jobs.spec = jobstore.TargetJobSpec(nil)
	jobs.counters[jobstore.CounterName("tbridge1")] = 99

	notify := &fakeNotifier{}
	e := newTestEngine(issues, jobs, notify)

	if err := e.Startup(context.Background(), jobs.spec, StartupOptions{KeepJobspec: true}); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	if got := jobs.counters[jobstore.CounterName("tbridge1")]; got != 99 {
		t.Fatalf("existing counter was reset to %d, want untouched 99", got)
	}
}

func TestCheckNoOrphanedLinkFieldsRejectsDroppedReservedField(t *testing.T) {
	installed := types.JobSpec{Fields: []types.JobField{
		{Code: 192, Name: "P4DTI-rid", DataType: types.JobFieldWord},
	}}
	target := types.JobSpec{}
	if err := checkNoOrphanedLinkFields(installed, target); err == nil {
		t.Fatal("checkNoOrphanedLinkFields() error = nil, want fatal error for a dropped reserved field")
	}
}

func TestCheckNoOrphanedLinkFieldsAllowsOrdinaryFieldDrop(t *testing.T) {
	installed := types.JobSpec{Fields: []types.JobField{
		{Code: 106, Name: "CustomField", DataType: types.JobFieldLine},
	}}
	target := types.JobSpec{}
	if err := checkNoOrphanedLinkFields(installed, target); err != nil {
		t.Fatalf("checkNoOrphanedLinkFields() error = %v, want nil for a non-reserved field", err)
	}
}
