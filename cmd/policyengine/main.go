// Command policyengine runs the Policy Evolution Engine's thin HTTP
// surface (SPEC_FULL.md C9 expansion): POST /runs triggers an Orchestrator
// run end to end, GET /runs/{id} fetches its report hand-off.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dustinrgood/CivicAide-PolicyAide/common/id"
	"github.com/dustinrgood/CivicAide-PolicyAide/common/logger"
	"github.com/dustinrgood/CivicAide-PolicyAide/common/otel"
	"github.com/dustinrgood/CivicAide-PolicyAide/core/config"
	"github.com/dustinrgood/CivicAide-PolicyAide/core/db"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/http/handler"
	httprouter "github.com/dustinrgood/CivicAide-PolicyAide/internal/http/router"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/orchestrator"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/search"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

func main() {
	fmt.Println(banner)
	ctx := context.Background()

	cfg := config.Load()

	// OTel must init before the logger, which attaches span context to
	// every record once a tracer provider exists.
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled")
	}

	slog.InfoContext(ctx, "policyengine starting", "env", cfg.Env)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	var dbSink *tracestore.DBSink
	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.WarnContext(ctx, "trace store relational sink disabled, database unreachable", "error", err)
	} else {
		defer database.Close()
		dbSink = tracestore.NewDBSink(database)
		if err := dbSink.EnsureSchema(ctx); err != nil {
			slog.WarnContext(ctx, "trace store relational sink disabled, schema setup failed", "error", err)
			dbSink = nil
		} else {
			slog.InfoContext(ctx, "trace store relational sink connected")
		}
	}

	fileSink, err := tracestore.NewFileSink(cfg.TraceDir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize trace store file sink", "error", err)
		os.Exit(1)
	}

	store := tracestore.New(fileSink, dbSink)

	var rateLimiter *llm.RateLimiter
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.WarnContext(ctx, "worker gateway proactive rate limiting disabled, redis unreachable", "error", err)
	} else {
		rateLimiter = llm.NewRateLimiter(redisClient, cfg.MaxInflight*15)
		slog.InfoContext(ctx, "redis connected", "addr", cfg.Redis.Addr)
	}

	gateway, err := llm.New(llm.Config{
		APIKey:  cfg.WorkerAPIKey,
		BaseURL: cfg.WorkerEndpoint,
		Model:   cfg.WorkerModel,
	}, rateLimiter)
	if err != nil {
		slog.ErrorContext(ctx, "failed to construct worker gateway", "error", err)
		os.Exit(1)
	}
	worker := llm.NewClient(gateway)

	var primary, secondary search.Provider
	if cfg.Typesense.Host != "" {
		primary = search.NewTypesenseProvider(cfg.Typesense.Host, cfg.Typesense.APIKey, cfg.Typesense.PrimaryCollection)
	}
	if cfg.Typesense.SecondaryHost != "" {
		secondary = search.NewTypesenseProvider(cfg.Typesense.SecondaryHost, cfg.Typesense.SecondaryAPIKey, cfg.Typesense.SecondaryCollection)
	}
	searchGW := search.New(primary, secondary)

	orch := orchestrator.New(worker, searchGW, store, orchestrator.Tunables{
		MaxGenerations:   cfg.MaxGenerations,
		RoundsPerGen:     cfg.RoundsPerGen,
		PairsPerRound:    cfg.PairsPerRound,
		InitialProposals: cfg.InitialProposals,
		TopMEvolve:       cfg.TopMEvolve,
		KFactor:          float64(cfg.KFactor),
		MaxInflight:      cfg.MaxInflight,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if !cfg.OTel.DisableTracing {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(gin.Recovery())
	httprouter.SetupRoutes(router, handler.NewRunHandler(orch))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // a run can take several minutes end to end
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

const banner = `
 ____       _ _           _____     _   _
|  _ \ ___ | (_) ___ _   |  ___|__ | | | |_ _ __  ___
| |_) / _ \| | |/ __| | | | |_ / _ \| | | | '_ \ / _ \
|  __/ (_) | | | (__| |_| |  _| (_) | |_| | | | |  __/
|_|   \___/|_|_|\___|\__, |_|  \___/ \___/|_| |_|\___|
                      |___/        Policy Evolution Engine
`
