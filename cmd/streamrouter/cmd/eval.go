package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/streamrouter/internal/condition"
	"github.com/solatis/streamrouter/internal/stream"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expression> <record.json|->",
	Short: "Evaluate an expression against one record",
	Long: `Evaluate an expression against one record in stream envelope or plain form.
Prints true or false.`,
	Args: cobra.ExactArgs(2),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	pred, err := condition.Compile(args[0])
	if err != nil {
		return err
	}

	var data []byte
	if args[1] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[1])
	}
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}

	rec, err := stream.DecodeRecord(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), condition.Evaluate(pred, rec))
	return nil
}
