package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"findiff/internal/userprofile/catalog"
)

func newPermsCommand() *cobra.Command {
	var module string

	cmd := &cobra.Command{
		Use:   "perms",
		Short: "List the permission catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			byModule := cat.ByModule()
			var rows [][]string
			for _, m := range cat.Modules() {
				if module != "" && m != module {
					continue
				}
				for _, p := range byModule[m] {
					rows = append(rows, []string{m, p.Codename, p.Name})
				}
			}
			if len(rows) == 0 {
				return fmt.Errorf("unknown module %q", module)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Module", "Codename", "Name"}, rows, nil,
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&module, "module", "m", "", "Only show one module")
	return cmd
}
