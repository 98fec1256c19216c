package commands

import (
	"strings"

	"feedroutes/lib/serviceutil"
	"feedroutes/services/routes"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the available routes and their parameters.",
	Run: func(cmd *cobra.Command, args []string) {
		registry, closeRegistry, err := openRegistry(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to open routes", err)
		}
		defer closeRegistry()

		t := newTable()
		t.AppendHeader(table.Row{"Path", "Name", "Example", "Parameters"})
		for _, route := range registry.Routes() {
			t.AppendRow(table.Row{route.Path(), route.Title, route.Example, describeParams(route.Params)})
		}
		t.Render()
	},
}

func describeParams(params []routes.Param) string {
	lines := make([]string, 0, len(params))
	for _, p := range params {
		line := p.Name + ": " + p.Description
		if p.Default != "" {
			line += " (default " + p.Default + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
