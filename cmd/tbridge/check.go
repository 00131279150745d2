package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/replicateio/tbridge/internal/timeparsing"
)

var checkSince string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the read-only consistency audit",
	Long:  `Re-translates every linked pair without writing anything and reports every way the two sides have drifted apart.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		since := time.Time{}
		if checkSince != "" {
			since, err = timeparsing.ParseRelativeTime(checkSince, time.Now())
			if err != nil {
				fatalf("check: --since: %v", err)
			}
		}

		result, err := d.engine.AuditSince(rootCtx, since)
		if err != nil {
			fatalf("check: %v", err)
		}

		outputResult(result, func() {
			if len(result.Discrepancies) == 0 {
				fmt.Println("No discrepancies found.")
				return
			}
			for _, disc := range result.Discrepancies {
				fmt.Printf("[%s] issue=%s job=%s: %s\n", disc.Kind, disc.IssueID, disc.JobName, disc.Detail)
			}
			fmt.Printf("\n%d discrepancies found.\n", len(result.Discrepancies))
		})

		if len(result.Discrepancies) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkSince, "since", "", "Audit every owned issue, plus unowned issues created or touched since this time (\"3 days ago\", \"2025-01-01\", \"+1w\")")
	rootCmd.AddCommand(checkCmd)
}
