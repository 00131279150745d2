package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run a single poll cycle",
	Long:  `Pairs the issues and jobs that changed since the last acknowledged mark, dispatches each pair, and acknowledges both sides' marks, once.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		result, err := d.engine.PollDatabases(rootCtx)
		if err != nil {
			if jsonOutput {
				outputResult(map[string]string{"error": err.Error()}, func() {})
			}
			fatalf("poll: %v", err)
		}

		outputResult(result, func() {
			fmt.Printf("Issues changed:     %d\n", result.IssuesChanged)
			fmt.Printf("Jobs changed:       %d\n", result.JobsChanged)
			fmt.Printf("Propagated 0->1:    %d\n", result.Propagated0to1)
			fmt.Printf("Propagated 1->0:    %d\n", result.Propagated1to0)
			fmt.Printf("Conflicts found:    %d\n", result.ConflictsFound)
			fmt.Printf("Changelists seen:   %d\n", result.ChangelistsSeen)
		})
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
