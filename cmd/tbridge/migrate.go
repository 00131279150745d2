package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateStart string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "One-shot import of pre-existing jobs as issues",
	Long: `Walks every job not already linked to an issue and imports it as
a migration-flagged issue, replicating its fixes and filespecs but
never writing back to the job. Safe to resume with --start after a
partial run.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		result, err := d.engine.MigrateJobs(rootCtx, migrateStart)
		if err != nil {
			fatalf("migrate: %v", err)
		}

		outputResult(result, func() {
			fmt.Printf("Imported: %d\n", result.Imported)
			fmt.Printf("Skipped:  %d\n", result.Skipped)
		})
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateStart, "start", "", "Resume after this job name instead of starting from the beginning")
	rootCmd.AddCommand(migrateCmd)
}
