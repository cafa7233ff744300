package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(flags *rootFlags) *cobra.Command {
	var (
		chainID string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run a single chat turn and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			result := rt.agent.NewSession().Chat(cmd.Context(), strings.Join(args, " "), chainID)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if !result.Success {
				return result.Err()
			}
			fmt.Fprintln(out, result.Data.Response)
			fmt.Fprintf(out, "\n(%d iteration(s), %d tool call(s))\n", result.Data.Iterations, len(result.Data.ToolCalls))
			return nil
		},
	}
	cmd.Flags().StringVar(&chainID, "chain", "", "chain id to query (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
