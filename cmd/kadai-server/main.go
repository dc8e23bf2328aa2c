package main

import (
	"context"
	"flag"
	"kadai-backend/lib/configutil"
	"kadai-backend/lib/notify"
	"kadai-backend/lib/telemetry"
	"kadai-backend/lib/util/serviceutil"
	"kadai-backend/services/assignments"
	"kadai-backend/services/assignments/db"
	"kadai-backend/services/crawler"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
)

func initTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)
	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	tel, err := telemetry.SetupFromEnv(ctx, "kadai-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		tel.Shutdown(context.Background())
	}()
	telemetry.InstrumentPerfStats(ctx)
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the configuration file.")
	flag.Parse()

	ctx := serviceutil.SignalContext()
	initTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	database, err := cfg.Database.OpenDB()
	if err != nil {
		serviceutil.Fatal("open database", err)
	}
	defer database.Close()
	err = db.Migrate(ctx, database)
	if err != nil {
		serviceutil.Fatal("migrate database", err)
	}

	notifier := notify.FromConfig(cfg.Smtp, 256)
	defer notifier.Close()

	store := assignments.NewStore(database)
	service := crawler.NewService(cfg.Crawler, store, notifier)

	mux := http.NewServeMux()
	mux.Handle(crawler.NewConnectHandler(
		service, store,
		connect.WithInterceptors(
			serviceutil.NewConnectOtelInterceptor(),
			serviceutil.VerifyAccessTokenInterceptor(cfg.AccessToken),
		),
	))

	serviceutil.StartHttpServer(ctx, cfg.Port, mux)
	slog.Info("shut down")
}
