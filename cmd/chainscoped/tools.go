package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd(flags *rootFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed by the configured MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrapTools(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			tools := rt.registry.PublicTools()
			if all {
				tools = rt.registry.Tools()
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVISIBILITY\tDESCRIPTION")
			for _, tool := range tools {
				visibility := "public"
				if !tool.Public() {
					visibility = "internal"
				}
				summary, _, _ := strings.Cut(strings.TrimSpace(tool.Description), "\n")
				fmt.Fprintf(w, "%s\t%s\t%s\n", tool.Name, visibility, summary)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include internal tools")
	return cmd
}
