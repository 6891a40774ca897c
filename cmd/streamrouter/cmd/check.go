package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/streamrouter/internal/condition"
)

var checkCmd = &cobra.Command{
	Use:   "check <expression>...",
	Short: "Compile condition expressions and report errors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, expr := range args {
		pred, err := condition.Compile(expr)
		if err != nil {
			failed++
			fmt.Fprintf(out, "invalid  %s\n         %v\n", expr, err)
			continue
		}
		fmt.Fprintf(out, "ok       %s\n", pred)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d expressions invalid", failed, len(args))
	}
	return nil
}
