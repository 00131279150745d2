package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force-write every replicable issue to its job",
	Long:  `Administrator-triggered forced one-way push from the issue side to the job side of every replicable issue. Never deletes a job.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		result, err := d.engine.Refresh(rootCtx)
		if err != nil {
			fatalf("refresh: %v", err)
		}

		outputResult(result, func() {
			fmt.Printf("Written: %d\n", result.Written)
			fmt.Printf("Skipped: %d\n", result.Skipped)
		})
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
