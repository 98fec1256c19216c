package commands

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"feedroutes/lib/feed"
	"feedroutes/lib/serviceutil"
	"feedroutes/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var outputJSON *bool

func init() {
	outputJSON = runCmd.Flags().Bool("json", false, "Print the feed as JSON instead of a table.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:     "run <route path>",
	Short:   "Runs a route and prints the resulting feed.",
	Example: "feedroutes run /nga/post2/18449558",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		registry, closeRegistry, err := openRegistry(ctx)
		if err != nil {
			serviceutil.Fatal("failed to open routes", err)
		}
		defer closeRegistry()

		route, params, err := registry.Match(args[0])
		if err != nil {
			serviceutil.Fatal("failed to find route", err)
		}

		start := time.Now()
		out, err := route.Run(ctx, params)
		if err != nil {
			serviceutil.Fatal("failed to run route", err)
		}
		slog.Debug("route finished", "route", route.Name, "seconds", time.Since(start).Seconds())

		if *outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			encoder.SetEscapeHTML(false)
			err = encoder.Encode(out)
			if err != nil {
				serviceutil.Fatal("failed to encode feed", err)
			}
			return
		}
		printFeed(out)
	},
}

func printFeed(out feed.Feed) {
	t := newTable()
	t.SetTitle(out.Title + "\n" + out.Link)
	t.AppendHeader(table.Row{"#", "Title", "Author", "Published", "Link"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for i, item := range out.Items {
		published := ""
		if item.PubDate != nil {
			published = item.PubDate.In(timezone.Location).Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{i + 1, item.Title, item.Author, published, item.Link})
	}
	t.Render()
}
