package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/streamrouter/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "show migration status without applying")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	database, _, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	if statusOnly, _ := cmd.Flags().GetBool("status"); statusOnly {
		statuses, err := db.MigrateStatus(database)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
				if s.AppliedAt != nil {
					state += " " + s.AppliedAt.Format("2006-01-02T15:04:05Z")
				}
			}
			fmt.Fprintf(out, "%-32s %s\n", s.ID, state)
		}
		return nil
	}

	applied, err := db.MigrateUp(database)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "database is up to date")
		return nil
	}
	for _, id := range applied {
		fmt.Fprintf(out, "applied %s\n", id)
	}
	return nil
}
