package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/types"
)

var checkJobspecYAML bool

var checkJobspecCmd = &cobra.Command{
	Use:   "check_jobspec",
	Short: "Diff the target jobspec against what's installed",
	Long:  `Computes the jobspec the configured field map requires and reports every field it is missing or disagrees with on the jobspec currently installed on the job side.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		installed, err := d.jobs.GetJobSpec(rootCtx)
		if err != nil {
			fatalf("check_jobspec: %v", err)
		}

		target := d.cfg.TargetJobSpec()

		if checkJobspecYAML {
			out, err := yaml.Marshal(jobSpecYAML(target))
			if err != nil {
				fatalf("check_jobspec: marshal target as yaml: %v", err)
			}
			fmt.Print(string(out))
			return
		}

		var missing []string
		for _, f := range target.Fields {
			if _, ok := installed.Field(f.Name); !ok {
				missing = append(missing, f.Name)
			}
		}
		// Dry-run ExtendJobSpec with force=true purely to collect every
		// compatibility warning in one pass instead of installing anything.
		_, warnings, err := jobstore.ExtendJobSpec(installed, target, true)
		if err != nil {
			fatalf("check_jobspec: %v", err)
		}

		outputResult(map[string]any{"missing": missing, "warnings": warnings}, func() {
			if len(missing) == 0 && len(warnings) == 0 {
				fmt.Println("Installed jobspec already satisfies the target.")
				return
			}
			for _, name := range missing {
				fmt.Printf("missing field: %s\n", name)
			}
			for _, w := range warnings {
				fmt.Println(w)
			}
		})
	},
}

// jobFieldYAML/jobSpecYAML give the target jobspec a stable, readable
// YAML shape (lowercase keys, field order preserved) for --yaml, since
// marshaling types.JobSpec directly would expose its Go field casing
// and the always-present but usually-empty AllowedValues slice.
type jobFieldYAML struct {
	Code          int      `yaml:"code"`
	Name          string   `yaml:"name"`
	DataType      string   `yaml:"datatype"`
	Persistence   string   `yaml:"persistence"`
	Preset        string   `yaml:"preset,omitempty"`
	AllowedValues []string `yaml:"allowed_values,omitempty"`
}

func jobSpecYAML(spec types.JobSpec) []jobFieldYAML {
	out := make([]jobFieldYAML, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		out = append(out, jobFieldYAML{
			Code:          f.Code,
			Name:          f.Name,
			DataType:      f.DataType.String(),
			Persistence:   string(f.Persistence),
			Preset:        f.Preset,
			AllowedValues: f.AllowedValues,
		})
	}
	return out
}

func init() {
	checkJobspecCmd.Flags().BoolVar(&checkJobspecYAML, "yaml", false, "Print the target jobspec as YAML instead of diffing against what's installed")
	rootCmd.AddCommand(checkJobspecCmd)
}
