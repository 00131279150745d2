package replicator

import (
	"context"
	"fmt"

	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/translate"
	"github.com/replicateio/tbridge/internal/types"
)

// StartupOptions controls the jobspec-extension behavior of Startup.
type StartupOptions struct {
	// KeepJobspec skips installing the target jobspec even if it
	// differs from what is currently installed. The installed jobspec
	// is then checked by ValidateJobSpec on its own; it is not compared
	// field by field with the target.
	KeepJobspec bool
	Force       bool
}

// Startup runs the fixed sequence of one-time checks a replicator
// process performs before entering its poll loop: jobspec
// compatibility, jobspec installation (unless skipped), jobspec
// validation, event-log counter initialisation, and the user-directory
// startup report. Any fatal failure here means the process must not
// proceed to poll.
func (e *Engine) Startup(ctx context.Context, target types.JobSpec, opts StartupOptions) error {
	installed, err := e.Jobs.GetJobSpec(ctx)
	if err != nil {
		return fmt.Errorf("startup: get_jobspec: %w", err)
	}

	if err := checkNoOrphanedLinkFields(installed, target); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	if !opts.KeepJobspec {
		extended, warnings, err := jobstore.ExtendJobSpec(installed, target, opts.Force)
		if err != nil {
			return fmt.Errorf("startup: extend_jobspec: %w", err)
		}
		for _, w := range warnings {
			if e.notify != nil {
				_ = e.notify.NotifyFailure(ctx, "jobspec compatibility warning", fmt.Errorf("%s", w))
			}
		}
		if err := e.Jobs.InstallJobSpec(ctx, extended); err != nil {
			return fmt.Errorf("startup: install_jobspec: %w", err)
		}
		installed = extended
	}

	if warnings := jobstore.ValidateJobSpec(installed); len(warnings) > 0 {
		return fmt.Errorf("startup: installed jobspec fails validation: %v", warnings)
	}

	if err := e.Jobs.EnsureCounter(ctx, jobstore.CounterName(e.Cfg.RID)); err != nil {
		return fmt.Errorf("startup: ensure_counter: %w", err)
	}

	if e.notify != nil {
		if err := e.buildAndReportDirectories(ctx); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
	}

	return nil
}

// checkNoOrphanedLinkFields is fatal if a reserved field (Job, Date or
// a P4DTI-* bookkeeping field) present on the installed jobspec is
// absent from the target jobspec. It does not check whether any job
// exists: the error is returned whether or not jobs are present. The
// error tells the administrator to delete the jobs referencing the
// field first, since rewriting the jobspec underneath live jobs would
// silently truncate data.
func checkNoOrphanedLinkFields(installed, target types.JobSpec) error {
	for _, f := range installed.Fields {
		if _, ok := target.Field(f.Name); !ok && isP4DTIReserved(f.Name) {
			return fmt.Errorf("installed jobspec field %q is not present in the target jobspec; delete existing jobs referencing it before proceeding", f.Name)
		}
	}
	return nil
}

func isP4DTIReserved(name string) bool {
	switch name {
	case "Job", "Date":
		return true
	}
	return len(name) > 6 && name[:6] == "P4DTI-"
}

// RefreshUserDirectories rebuilds the user-translation directories and
// sends the startup report without running the rest of Startup's
// jobspec checks, for the migrate_users CLI operation.
func (e *Engine) RefreshUserDirectories(ctx context.Context) error {
	return e.buildAndReportDirectories(ctx)
}

// buildAndReportDirectories loads both sides' user lists, builds the
// translator directories the field map's user translator will consult
// all cycle, and sends the startup report of unmatched and
// duplicate-email users.
func (e *Engine) buildAndReportDirectories(ctx context.Context) error {
	side0, err := e.Issues.Side0Users(ctx)
	if err != nil {
		return fmt.Errorf("side0_users: %w", err)
	}
	side1, err := e.Jobs.Side1Users(ctx)
	if err != nil {
		return fmt.Errorf("side1_users: %w", err)
	}

	dirs, err := translate.BuildUserDirectories(side0, side1, e.Cfg.BookkeepingSide0ID, e.Cfg.BookkeepingSide1User)
	if err != nil {
		return fmt.Errorf("build_user_directories: %w", err)
	}
	e.Directories = dirs

	if err := e.notify.NotifyStartupReport(ctx, dirs); err != nil {
		return fmt.Errorf("notify_startup_report: %w", err)
	}
	return nil
}
