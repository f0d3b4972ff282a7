package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"superpaste/svc/backend"
)

func newBackendsCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the supported backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tURL\tMAX FILES")
			for _, name := range backend.Names() {
				b, err := backend.New(cmd.Context(), name, cli.cfg, cli.secrets)
				if err != nil {
					fmt.Fprintf(w, "%s\t-\t(%v)\n", name, err)
					continue
				}
				limit := "unlimited"
				if n := b.MaxFiles(); n > 0 {
					limit = fmt.Sprint(n)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, b.BaseURL(), limit)
			}
			return w.Flush()
		},
	}
}
