package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replicateio/tbridge/internal/jobstore"
)

var checkJobsCmd = &cobra.Command{
	Use:   "check_jobs",
	Short: "Check every job's fields against the installed jobspec",
	Long:  `Walks every job and reports any field value that violates the installed jobspec: a required field left unset, or a select field holding a value outside its allowed set.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		installed, err := d.jobs.GetJobSpec(rootCtx)
		if err != nil {
			fatalf("check_jobs: %v", err)
		}

		names, err := d.jobs.ListJobNames(rootCtx, "")
		if err != nil {
			fatalf("check_jobs: %v", err)
		}

		violations := map[string][]string{}
		for _, name := range names {
			job, err := d.jobs.GetJob(rootCtx, name)
			if err != nil {
				if jobstore.IsNotFound(err) {
					continue
				}
				fatalf("check_jobs: get_job(%s): %v", name, err)
			}
			if warnings := jobstore.ValidateJob(installed, job); len(warnings) > 0 {
				violations[name] = warnings
			}
		}

		outputResult(violations, func() {
			if len(violations) == 0 {
				fmt.Println("All jobs comply with the installed jobspec.")
				return
			}
			for _, name := range names {
				warnings, ok := violations[name]
				if !ok {
					continue
				}
				for _, w := range warnings {
					fmt.Printf("%s: %s\n", name, w)
				}
			}
			fmt.Printf("\n%d job(s) out of compliance.\n", len(violations))
		})
	},
}

func init() {
	rootCmd.AddCommand(checkJobsCmd)
}
