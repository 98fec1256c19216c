package commands

import (
	"context"
	"fmt"
	"os"

	"feedroutes/lib/configutil"
	"feedroutes/lib/restyutil"
	"feedroutes/lib/telemetry"
	"feedroutes/services/routes"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file to read, a missing file means defaults.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging and dump http exchanges to .dev/resty.")
}

var rootCmd = &cobra.Command{
	Use:   "feedroutes",
	Short: "feedroutes runs feed routes from the command line.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(*verbose)
		return nil
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func openRegistry(ctx context.Context) (routes.Registry, func(), error) {
	cfg, err := configutil.ReadOptional[routes.Config](*configPath)
	if err != nil {
		return routes.Registry{}, nil, fmt.Errorf("read config: %w", err)
	}

	var dump restyutil.InstrumentOutput
	if *verbose {
		output, err := restyutil.NewFilesystemOutput(".dev/resty")
		if err != nil {
			return routes.Registry{}, nil, err
		}
		dump = output
	}
	return routes.Open(ctx, cfg, dump)
}
