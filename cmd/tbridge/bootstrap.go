package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/replicateio/tbridge/internal/config"
	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/notification"
	"github.com/replicateio/tbridge/internal/replicator"
)

// deployment holds everything a command needs after loading config
// and dialing both sides: the loaded config itself (for jobspec/CLI
// operations that don't go through the engine) and the wired engine.
type deployment struct {
	cfg    *config.ReplicatorConfig
	issues *issuestore.Store
	jobs   *jobstore.Client
	engine *replicator.Engine
}

// openDeployment loads the config file and dials both sides, wiring
// an Engine ready for any of the CLI operations. Callers that only
// need the raw cfg/adapters (check_jobspec, extend_jobspec) can ignore
// d.engine.
func openDeployment(ctx context.Context) (*deployment, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.IssueSide.User != "" && cfg.IssueSide.Password == "" {
		password, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("read issue store password: %w", err)
		}
		cfg.IssueSide.Password = password
	}

	issues, err := issuestore.Open(ctx, cfg.IssueStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open issue store: %w", err)
	}

	jobs, err := jobstore.NewClient(ctx, cfg.JobStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("dial job store: %w", err)
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("build engine config: %w", err)
	}

	notifier := notification.NewMailNotifier(cfg.NotifierConfig())
	engine := replicator.NewEngine(issues, jobs, engineCfg, notifier)

	return &deployment{cfg: cfg, issues: issues, jobs: jobs, engine: engine}, nil
}

func (d *deployment) Close() error {
	return d.issues.Close()
}

// promptPassword reads a password from the controlling terminal
// without echoing it, for a config file that names a user but leaves
// the password blank on purpose.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Issue store password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}
