package config

import (
	"fmt"
	"strings"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/notification"
	"github.com/replicateio/tbridge/internal/replicator"
	"github.com/replicateio/tbridge/internal/translate"
	"github.com/replicateio/tbridge/internal/types"
)

// IssueStoreConfig builds the issue-side adapter's connection config.
func (cfg *ReplicatorConfig) IssueStoreConfig() issuestore.Config {
	return issuestore.Config{
		Host:     cfg.IssueSide.Host,
		Port:     cfg.IssueSide.Port,
		User:     cfg.IssueSide.User,
		Password: cfg.IssueSide.Password,
		Database: cfg.IssueSide.Database,
		RID:      cfg.RID,
		SID:      cfg.SID,
	}
}

// JobStoreConfig builds the job-side subprocess client's config.
func (cfg *ReplicatorConfig) JobStoreConfig() jobstore.Config {
	return jobstore.Config{
		Binary:  cfg.JobSide.Binary,
		Dir:     cfg.JobSide.Dir,
		Env:     cfg.JobSide.Env,
		Port:    cfg.JobSide.Port,
		User:    cfg.JobSide.User,
		Client:  cfg.JobSide.Client,
		Timeout: cfg.JobSide.Timeout,
	}
}

// NotifierConfig builds the mail notifier's config.
func (cfg *ReplicatorConfig) NotifierConfig() notification.Config {
	return notification.Config{
		AdminEmail: cfg.Notification.AdminEmail,
		FromName:   cfg.Notification.FromName,
	}
}

// conflictPolicy parses the configured conflict policy string,
// defaulting to side-0-wins for an empty or unrecognized value (the
// empty case is already filled in by applyDefaults). No warning is
// printed when a value is substituted.
func (cfg *ReplicatorConfig) conflictPolicy() replicator.ConflictPolicy {
	switch strings.ToLower(strings.TrimSpace(cfg.ConflictPolicy)) {
	case "side1":
		return replicator.PolicySide1Wins
	case "no-op", "noop":
		return replicator.PolicyNoOp
	default:
		return replicator.PolicySide0Wins
	}
}

func parseUserMode(s string) translate.UserMode {
	if strings.EqualFold(strings.TrimSpace(s), "lax") {
		return translate.UserLax
	}
	return translate.UserStrict
}

func parseDateMode(s string) translate.Side1DateMode {
	if strings.EqualFold(strings.TrimSpace(s), "epoch") {
		return translate.Side1DateEpoch
	}
	return translate.Side1DateSlash
}

// buildTranslator resolves one field mapping's translator kind into a
// concrete translate.Translator, sharing the status translator's
// construction (which can fail on a malformed vocabulary) across
// every field mapping that names "status".
func (cfg *ReplicatorConfig) buildTranslator(kind string, statusTranslator *translate.StatusTranslator) (translate.Translator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "text":
		return translate.TextTranslator{}, nil
	case "keyword":
		return translate.KeywordTranslator{}, nil
	case "enum":
		return translate.EnumTranslator{}, nil
	case "int":
		return translate.IntTranslator{}, nil
	case "status":
		if statusTranslator == nil {
			return nil, fmt.Errorf("status translator requested but could not be built")
		}
		return statusTranslator, nil
	case "date":
		return translate.DateTranslator{Mode: parseDateMode(cfg.Translators.Side1DateMode)}, nil
	case "timestamp":
		return translate.TimestampTranslator{}, nil
	case "user":
		return translate.UserTranslator{Mode: parseUserMode(cfg.Translators.FieldUserMode)}, nil
	case "fix_user":
		return translate.UserTranslator{Mode: parseUserMode(cfg.Translators.FixUserMode)}, nil
	default:
		return nil, fmt.Errorf("unknown field mapping kind %q", kind)
	}
}

// FieldMap builds the replicator's ordered field-mapping table from
// the configured translator kinds, constructing the shared status
// translator once from the configured source vocabulary.
func (cfg *ReplicatorConfig) FieldMap() ([]replicator.FieldMapping, error) {
	var statusTranslator *translate.StatusTranslator
	if len(cfg.Translators.Side0Statuses) > 0 {
		st, err := translate.NewStatusTranslator(cfg.Translators.Side0Statuses, cfg.Translators.ClosedStatus, cfg.Translators.ProhibitedPrefix)
		if err != nil {
			return nil, fmt.Errorf("config: build status translator: %w", err)
		}
		statusTranslator = st
	}

	out := make([]replicator.FieldMapping, 0, len(cfg.FieldMap))
	for _, m := range cfg.FieldMap {
		t, err := cfg.buildTranslator(m.Kind, statusTranslator)
		if err != nil {
			return nil, fmt.Errorf("config: field mapping %s<->%s: %w", m.IssueField, m.JobField, err)
		}
		out = append(out, replicator.FieldMapping{
			IssueField: m.IssueField,
			JobField:   m.JobField,
			Translator: t,
		})
	}
	return out, nil
}

// newJobPredicate builds the new-job acceptance hook from the
// configured client allow-list and jobname-prefix allow-list. With
// neither list configured every new job is rejected; otherwise an
// unconfigured list imposes no restriction, and a job must satisfy
// every configured list to be accepted.
func (cfg *ReplicatorConfig) newJobPredicate() jobstore.NewJobPredicate {
	clients := cfg.Predicate.AllowedClients
	prefixes := cfg.Predicate.RequiredJobPrefixes
	if len(clients) == 0 && len(prefixes) == 0 {
		return func(types.Job) bool { return false }
	}
	return func(job types.Job) bool {
		if len(clients) > 0 {
			client := job.Get("Client")
			ok := false
			for _, c := range clients {
				if c == client {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		if len(prefixes) > 0 {
			ok := false
			for _, p := range prefixes {
				if strings.HasPrefix(job.Name, p) {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		return true
	}
}

// replicableStatus builds the issue-side predicate hook that decides
// whether an issue qualifies for replication at all, from the
// configured excluded-status list; an unconfigured list replicates
// every issue.
func (cfg *ReplicatorConfig) replicableStatus() func(types.Issue) bool {
	excluded := cfg.Predicate.ExcludedIssueStatuses
	if len(excluded) == 0 {
		return func(types.Issue) bool { return true }
	}
	excludedSet := make(map[types.Status]bool, len(excluded))
	for _, s := range excluded {
		excludedSet[types.Status(s)] = true
	}
	return func(issue types.Issue) bool { return !excludedSet[issue.Status] }
}

// jobFieldType picks the jobspec data type implied by a field
// mapping's translator kind, for TargetJobSpec.
func jobFieldType(kind string) types.JobFieldType {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "status", "enum", "keyword":
		return types.JobFieldSelect
	case "int":
		return types.JobFieldWord
	case "date", "timestamp":
		return types.JobFieldDate
	default:
		return types.JobFieldText
	}
}

// TargetJobSpec builds the jobspec this deployment's field mapping
// requires, for the check_jobspec/extend_jobspec CLI operations to
// compare against what is currently installed.
func (cfg *ReplicatorConfig) TargetJobSpec() types.JobSpec {
	mapped := make([]types.JobField, 0, len(cfg.FieldMap))
	for _, m := range cfg.FieldMap {
		if m.JobField == "" {
			continue
		}
		mapped = append(mapped, types.JobField{
			Name:        m.JobField,
			DataType:    jobFieldType(m.Kind),
			Persistence: types.PersistDefault,
		})
	}
	return jobstore.TargetJobSpec(mapped)
}

// EngineConfig builds the replicator core's static configuration,
// including the field map and new-job predicate.
func (cfg *ReplicatorConfig) EngineConfig() (replicator.Config, error) {
	fieldMap, err := cfg.FieldMap()
	if err != nil {
		return replicator.Config{}, err
	}
	return replicator.Config{
		RID:                  cfg.RID,
		SID:                  cfg.SID,
		PollPeriod:           cfg.PollPeriodBase,
		FieldMap:             fieldMap,
		ConflictPolicy:       cfg.conflictPolicy(),
		UsePerforceJobnames:  cfg.Features.UsePerforceJobnames,
		ReplicableStatus:     cfg.replicableStatus(),
		NewJobPredicate:      cfg.newJobPredicate(),
		FixesEnabled:         cfg.Features.Fixes,
		BookkeepingSide0ID:   cfg.Translators.BookkeepingSide0ID,
		BookkeepingSide1User: cfg.Translators.BookkeepingSide1User,
	}, nil
}
