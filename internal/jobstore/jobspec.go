package jobstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/replicateio/tbridge/internal/types"
)

// requiredFields lists the P4DTI-* bookkeeping fields every jobspec
// must carry, with their reserved codes and contracted
// datatype/persistence/preset.
var requiredFields = []types.JobField{
	{Code: 101, Name: "Job", DataType: types.JobFieldWord, Persistence: types.PersistRequired},
	{Code: 104, Name: "Date", DataType: types.JobFieldDate, Persistence: types.PersistAlways, Preset: "$now"},
	{Code: 191, Name: "P4DTI-filespecs", DataType: types.JobFieldText, Persistence: types.PersistOptional},
	{Code: 192, Name: "P4DTI-rid", DataType: types.JobFieldWord, Persistence: types.PersistRequired, Preset: "None"},
	{Code: 193, Name: "P4DTI-issue-id", DataType: types.JobFieldWord, Persistence: types.PersistRequired, Preset: "None"},
	{Code: 194, Name: "P4DTI-user", DataType: types.JobFieldWord, Persistence: types.PersistAlways, Preset: "$user"},
}

const (
	userFieldCodeStart     = 106
	userFieldCodeEnd       = 193 // exclusive; 194 and below are P4DTI-reserved
	reservedFieldCodeStart = 194
)

// GetJobSpec reads the jobspec currently installed on side 1.
func (c *Client) GetJobSpec(ctx context.Context) (types.JobSpec, error) {
	out, err := c.run(ctx, []string{"jobspec", "-o"}, nil)
	if err != nil {
		return types.JobSpec{}, fmt.Errorf("jobstore: get_jobspec: %w", err)
	}
	return parseJobSpec(out)
}

func parseJobSpec(raw string) (types.JobSpec, error) {
	var spec types.JobSpec
	lines := strings.Split(raw, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		var f types.JobField
		_, _ = fmt.Sscanf(fields[0], "%d", &f.Code)
		f.Name = fields[1]
		f.DataType = parseDataType(fields[2])
		_, _ = fmt.Sscanf(fields[3], "%d", &f.Length)
		if len(fields) > 4 {
			f.Persistence = types.JobFieldPersistence(fields[4])
		}
		if len(fields) > 5 {
			f.Preset = strings.Join(fields[5:], " ")
		}
		spec.Fields = append(spec.Fields, f)
	}
	return spec, nil
}

func parseDataType(s string) types.JobFieldType {
	switch s {
	case "word":
		return types.JobFieldWord
	case "line":
		return types.JobFieldLine
	case "select":
		return types.JobFieldSelect
	case "date":
		return types.JobFieldDate
	default:
		return types.JobFieldText
	}
}

func formatJobSpec(spec types.JobSpec) string {
	var b strings.Builder
	b.WriteString("Fields:\n")
	for _, f := range spec.Fields {
		fmt.Fprintf(&b, "\t%d %s %s %d %s", f.Code, f.Name, f.DataType, f.Length, f.Persistence)
		if f.Preset != "" {
			fmt.Fprintf(&b, " %s", f.Preset)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// InstallJobSpec writes a jobspec verbatim, overwriting whatever is
// currently installed.
func (c *Client) InstallJobSpec(ctx context.Context, spec types.JobSpec) error {
	_, err := c.run(ctx, []string{"jobspec", "-i"}, record{"spec": formatJobSpec(spec)})
	if err != nil {
		return fmt.Errorf("jobstore: install_jobspec: %w", err)
	}
	return nil
}

// ExtendJobSpec adds any of target's fields missing from installed,
// auto-allocating codes for new fields: ordinary fields are allocated
// from userFieldCodeStart upward, P4DTI-reserved fields from
// reservedFieldCodeStart downward. A code already in use by installed
// is renumbered only when force is set; otherwise the clash is
// reported as an error rather than silently skipped, since extending
// a live jobspec under a clashing code would corrupt existing jobs.
func ExtendJobSpec(installed, target types.JobSpec, force bool) (types.JobSpec, []string, error) {
	result := installed
	used := make(map[int]bool, len(installed.Fields))
	for _, f := range installed.Fields {
		used[f.Code] = true
	}

	nextUserCode := userFieldCodeStart
	nextReservedCode := 999 // replaced below by the lowest installed code at or above reservedFieldCodeStart
	for _, f := range installed.Fields {
		if f.Code >= reservedFieldCodeStart && f.Code < nextReservedCode {
			nextReservedCode = f.Code
		}
	}
	if nextReservedCode == 999 {
		nextReservedCode = reservedFieldCodeStart
	}

	var warnings []string
	for _, want := range target.Fields {
		if existing, ok := installed.Field(want.Name); ok {
			if clash := compatibilityWarning(existing, want); clash != "" {
				warnings = append(warnings, clash)
			}
			continue
		}

		field := want
		if field.Code != 0 && used[field.Code] && !force {
			return types.JobSpec{}, warnings, fmt.Errorf("jobstore: field %q requests code %d already in use", want.Name, field.Code)
		}
		if field.Code == 0 || used[field.Code] {
			if strings.HasPrefix(want.Name, "P4DTI-") || want.Name == "Job" || want.Name == "Date" {
				for used[nextReservedCode] {
					nextReservedCode--
				}
				field.Code = nextReservedCode
				nextReservedCode--
			} else {
				for used[nextUserCode] {
					nextUserCode++
				}
				field.Code = nextUserCode
				nextUserCode++
			}
		}
		used[field.Code] = true
		result.Fields = append(result.Fields, field)
	}

	sort.Slice(result.Fields, func(i, j int) bool { return result.Fields[i].Code < result.Fields[j].Code })
	return result, warnings, nil
}

// restrictiveness ranks datatypes from least to most restrictive for
// the compatibility lattice: text < line < word < select; date is
// incompatible with all four non-date types.
func restrictiveness(t types.JobFieldType) int {
	switch t {
	case types.JobFieldText:
		return 0
	case types.JobFieldLine:
		return 1
	case types.JobFieldWord:
		return 2
	case types.JobFieldSelect:
		return 3
	default:
		return -1
	}
}

// compatibilityWarning compares an existing field against a target
// descriptor. P4DTI-* fields must match exactly; select fields must
// contain all target allowed values; other mismatches are ranked on
// the restrictiveness lattice and reported but not fatal, since a more
// restrictive existing type (e.g. the site already declared a field as
// "word" where the target only needs "text") never loses information.
func compatibilityWarning(existing, target types.JobField) string {
	if strings.HasPrefix(target.Name, "P4DTI-") || target.Name == "Job" || target.Name == "Date" {
		if existing.DataType != target.DataType || existing.Persistence != target.Persistence {
			return fmt.Sprintf("field %q: expected datatype=%s persistence=%s, installed has datatype=%s persistence=%s",
				target.Name, target.DataType, target.Persistence, existing.DataType, existing.Persistence)
		}
		return ""
	}

	if target.DataType == types.JobFieldDate || existing.DataType == types.JobFieldDate {
		if existing.DataType != target.DataType {
			return fmt.Sprintf("field %q: date is incompatible with %s", target.Name, existing.DataType)
		}
		return ""
	}

	if existing.DataType == types.JobFieldSelect {
		missing := missingValues(target.AllowedValues, existing.AllowedValues)
		if len(missing) > 0 {
			return fmt.Sprintf("field %q: installed select values missing %v", target.Name, missing)
		}
		return ""
	}

	if restrictiveness(existing.DataType) < restrictiveness(target.DataType) {
		return fmt.Sprintf("field %q: installed datatype %s is less restrictive than required %s", target.Name, existing.DataType, target.DataType)
	}
	return ""
}

func missingValues(want, have []string) []string {
	haveSet := make(map[string]bool, len(have))
	for _, v := range have {
		haveSet[v] = true
	}
	var missing []string
	for _, v := range want {
		if !haveSet[v] {
			missing = append(missing, v)
		}
	}
	return missing
}

// ValidateJobSpec checks an installed jobspec against the required
// P4DTI-* fields, returning every compatibility warning found; an
// empty result means the installed spec is fully compliant.
func ValidateJobSpec(installed types.JobSpec) []string {
	var warnings []string
	for _, req := range requiredFields {
		existing, ok := installed.Field(req.Name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("field %q is missing", req.Name))
			continue
		}
		if w := compatibilityWarning(existing, req); w != "" {
			warnings = append(warnings, w)
		}
	}
	return warnings
}

// ValidateJob checks one job's field values against an installed
// jobspec: every required/always field must be set, and every select
// field's value must be one of its allowed values. Unlike
// ValidateJobSpec, which checks the spec itself, this checks a single
// job record against that spec.
func ValidateJob(installed types.JobSpec, job types.Job) []string {
	var warnings []string
	for _, f := range installed.Fields {
		val := job.Get(f.Name)
		if (f.Persistence == types.PersistRequired || f.Persistence == types.PersistAlways) && val == "" {
			warnings = append(warnings, fmt.Sprintf("field %q is required but unset", f.Name))
			continue
		}
		if f.DataType == types.JobFieldSelect && val != "" && len(f.AllowedValues) > 0 {
			allowed := false
			for _, v := range f.AllowedValues {
				if v == val {
					allowed = true
					break
				}
			}
			if !allowed {
				warnings = append(warnings, fmt.Sprintf("field %q: value %q is not in allowed values %v", f.Name, val, f.AllowedValues))
			}
		}
	}
	return warnings
}

// TargetJobSpec builds the jobspec a deployment's field mapping
// requires: the P4DTI-* bookkeeping fields plus every mapped field not
// already one of them.
func TargetJobSpec(mappedFields []types.JobField) types.JobSpec {
	spec := types.JobSpec{Fields: append([]types.JobField(nil), requiredFields...)}
	for _, f := range mappedFields {
		if _, ok := spec.Field(f.Name); ok {
			continue
		}
		spec.Fields = append(spec.Fields, f)
	}
	return spec
}
