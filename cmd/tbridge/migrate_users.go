package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateUsersCmd = &cobra.Command{
	Use:   "migrate_users",
	Short: "Rebuild the user-translation directories",
	Long:  `Re-reads both sides' user lists and rebuilds the directories the user translator uses, reporting any name it could not resolve on the other side, without running a full poll cycle.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		if err := d.engine.RefreshUserDirectories(rootCtx); err != nil {
			fatalf("migrate_users: %v", err)
		}

		outputResult(map[string]string{"status": "ok"}, func() {
			fmt.Println("User directories rebuilt.")
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateUsersCmd)
}
