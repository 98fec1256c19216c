package main

import (
	"context"
	"flag"
	"log/slog"

	"feedroutes/lib/configutil"
	"feedroutes/lib/restyutil"
	"feedroutes/lib/serviceutil"
	"feedroutes/lib/telemetry"
	"feedroutes/services/routes"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "The config file to read.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(*verbose)
	tel, err := telemetry.SetupFromEnv(ctx, "feedroutes-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)

	cfg, err := configutil.ReadOptional[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	var dump restyutil.InstrumentOutput
	if *verbose {
		output, err := restyutil.NewFilesystemOutput(".dev/resty")
		if err != nil {
			serviceutil.Fatal("create resty dump dir", err)
		}
		dump = output
	}

	registry, closeRegistry, err := routes.Open(ctx, cfg.Config, dump)
	if err != nil {
		serviceutil.Fatal("open routes", err)
	}
	defer closeRegistry()

	port := cfg.Server.Port
	if port == 0 {
		port = defaultPort
	}
	handler := serviceutil.VerifyAccessToken(cfg.Server.AccessToken, newHandler(registry))

	err = serviceutil.StartHttpServer(ctx, port, handler)
	if err != nil {
		slog.Error("http server stopped", "err", err)
	}

	err = tel.Shutdown(context.Background())
	if err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
}
