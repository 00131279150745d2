package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replicateio/tbridge/internal/jobstore"
)

var extendJobspecForce bool

var extendJobspecCmd = &cobra.Command{
	Use:   "extend_jobspec",
	Short: "Install the fields the field map requires",
	Long: `Adds every field the configured field map requires that the
installed jobspec is missing, auto-allocating codes, and installs the
result. A new field whose requested code is already in use makes the
command fail; with --force it is given a newly allocated code instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		installed, err := d.jobs.GetJobSpec(rootCtx)
		if err != nil {
			fatalf("extend_jobspec: %v", err)
		}
		target := d.cfg.TargetJobSpec()

		extended, warnings, err := jobstore.ExtendJobSpec(installed, target, extendJobspecForce)
		if err != nil {
			fatalf("extend_jobspec: %v (retry with --force)", err)
		}

		if err := d.jobs.InstallJobSpec(rootCtx, extended); err != nil {
			fatalf("extend_jobspec: %v", err)
		}

		outputResult(map[string]any{"fields": len(extended.Fields), "warnings": warnings}, func() {
			fmt.Printf("Installed jobspec now has %d fields.\n", len(extended.Fields))
			for _, w := range warnings {
				fmt.Println(w)
			}
		})
	},
}

func init() {
	extendJobspecCmd.Flags().BoolVar(&extendJobspecForce, "force", false, "Renumber fields whose requested code is already in use")
	rootCmd.AddCommand(extendJobspecCmd)
}
