package jobstore

import (
	"testing"

	"github.com/replicateio/tbridge/internal/types"
)

func TestValidateJobSpecMissingField(t *testing.T) {
	installed := types.JobSpec{Fields: []types.JobField{
		{Code: 101, Name: "Job", DataType: types.JobFieldWord, Persistence: types.PersistRequired},
	}}
	warnings := ValidateJobSpec(installed)
	if len(warnings) == 0 {
		t.Fatal("expected warnings for missing P4DTI-* fields")
	}
}

func TestValidateJobSpecCompliant(t *testing.T) {
	installed := types.JobSpec{Fields: append([]types.JobField(nil), requiredFields...)}
	warnings := ValidateJobSpec(installed)
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings for a fully compliant jobspec, got %v", warnings)
	}
}

func TestExtendJobSpecAllocatesUserCode(t *testing.T) {
	installed := types.JobSpec{Fields: append([]types.JobField(nil), requiredFields...)}
	target := types.JobSpec{Fields: []types.JobField{
		{Name: "Summary", DataType: types.JobFieldText, Persistence: types.PersistOptional},
	}}

	extended, warnings, err := ExtendJobSpec(installed, target, false)
	if err != nil {
		t.Fatalf("ExtendJobSpec: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	f, ok := extended.Field("Summary")
	if !ok {
		t.Fatal("Summary field not added")
	}
	if f.Code < userFieldCodeStart {
		t.Fatalf("Summary allocated code %d, want >= %d", f.Code, userFieldCodeStart)
	}
}

func TestExtendJobSpecClashWithoutForceErrors(t *testing.T) {
	installed := types.JobSpec{Fields: []types.JobField{
		{Code: 106, Name: "Other", DataType: types.JobFieldText},
	}}
	target := types.JobSpec{Fields: []types.JobField{
		{Code: 106, Name: "Summary", DataType: types.JobFieldText},
	}}

	_, _, err := ExtendJobSpec(installed, target, false)
	if err == nil {
		t.Fatal("expected a clash error without force")
	}
}

func TestCompatibilityWarningRestrictivenessLattice(t *testing.T) {
	existing := types.JobField{Name: "Component", DataType: types.JobFieldText}
	target := types.JobField{Name: "Component", DataType: types.JobFieldWord}
	if w := compatibilityWarning(existing, target); w == "" {
		t.Fatal("expected a warning: text is less restrictive than word")
	}

	existing2 := types.JobField{Name: "Component", DataType: types.JobFieldWord}
	target2 := types.JobField{Name: "Component", DataType: types.JobFieldText}
	if w := compatibilityWarning(existing2, target2); w != "" {
		t.Fatalf("word satisfying text requirement should not warn, got %q", w)
	}
}

func TestCompatibilityWarningDateIncompatible(t *testing.T) {
	existing := types.JobField{Name: "Due", DataType: types.JobFieldWord}
	target := types.JobField{Name: "Due", DataType: types.JobFieldDate}
	if w := compatibilityWarning(existing, target); w == "" {
		t.Fatal("expected a warning: date is incompatible with word")
	}
}

func TestCompatibilityWarningSelectMissingValues(t *testing.T) {
	existing := types.JobField{Name: "Component", DataType: types.JobFieldSelect, AllowedValues: []string{"core"}}
	target := types.JobField{Name: "Component", DataType: types.JobFieldSelect, AllowedValues: []string{"core", "ui"}}
	w := compatibilityWarning(existing, target)
	if w == "" {
		t.Fatal("expected a warning for missing select value")
	}
}

func TestParseAndFormatJobSpecRoundTrip(t *testing.T) {
	spec := types.JobSpec{Fields: []types.JobField{
		{Code: 101, Name: "Job", DataType: types.JobFieldWord, Length: 32, Persistence: types.PersistRequired},
		{Code: 194, Name: "P4DTI-user", DataType: types.JobFieldWord, Length: 32, Persistence: types.PersistAlways, Preset: "$user"},
	}}
	text := formatJobSpec(spec)
	parsed, err := parseJobSpec(text)
	if err != nil {
		t.Fatalf("parseJobSpec: %v", err)
	}
	if len(parsed.Fields) != len(spec.Fields) {
		t.Fatalf("parseJobSpec() returned %d fields, want %d", len(parsed.Fields), len(spec.Fields))
	}
	if parsed.Fields[0].Name != "Job" || parsed.Fields[1].Name != "P4DTI-user" {
		t.Fatalf("unexpected field order/names: %+v", parsed.Fields)
	}
}
