package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"superpaste/svc/backend/mystbin"
	"superpaste/svc/svc"
)

func newGetCommand(cli *CLI) *cobra.Command {
	var f createFlags
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the files of a paste",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := cli.open(cmd.Context(), f.backend, f)
			if err != nil {
				return err
			}
			p := svc.NewPaste(b, nil)
			defer p.Shutdown()
			files, err := p.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for i, file := range files {
				if len(files) > 1 {
					if i > 0 {
						fmt.Fprintln(cli.out)
					}
					name := file.Filename()
					if name == "" {
						name = fmt.Sprintf("file %d", i+1)
					}
					fmt.Fprintf(cli.out, "==> %s <==\n", name)
				}
				cli.out.Write(file.Bytes())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.backend, "backend", "b", "", "backend to use (default $BACKEND)")
	cmd.Flags().StringVar(&f.password, "password", "", mystbin.Name+": password of a protected paste")
	return cmd
}
