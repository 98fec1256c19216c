package main

import (
	"context"

	"feedroutes/cmd/feedroutes/commands"
	"feedroutes/lib/serviceutil"
	"feedroutes/lib/telemetry"
)

func main() {
	ctx := context.Background()
	tel, err := telemetry.SetupFromEnv(ctx, "feedroutes")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer tel.Shutdown(ctx)

	commands.ExecuteContext(ctx)
}
