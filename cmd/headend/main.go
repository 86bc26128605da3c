package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/voltgrid/bess/internal/agentlink"
	"github.com/voltgrid/bess/internal/catalog"
	"github.com/voltgrid/bess/internal/config"
	"github.com/voltgrid/bess/internal/dispatch"
	"github.com/voltgrid/bess/internal/headend"
	"github.com/voltgrid/bess/internal/httpapi"
	"github.com/voltgrid/bess/internal/journal"
	"github.com/voltgrid/bess/internal/metrics"
	"github.com/voltgrid/bess/pb"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.LoadHeadend()

	cat, err := catalog.Load(cfg.AssetsPath)
	if err != nil {
		log.Fatalf("Failed to load asset catalogue from %s: %v", cfg.AssetsPath, err)
	}
	log.Printf("Loaded %d assets across %d sites from %s",
		len(cat.ListAll()), len(cat.Sites()), cfg.AssetsPath)

	ctx := context.Background()

	// The journal is best-effort everywhere downstream, but a configured URL
	// that does not work is an operator mistake worth failing on.
	var jnl journal.Journal
	if cfg.DatabaseURL != "" {
		pg, err := journal.OpenPostgres(ctx, cfg.DatabaseURL, cfg.ResetDB)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer pg.Close()
		jnl = pg
		log.Println("Journal connected")
	} else {
		log.Println("DATABASE_URL not set, running journal-less")
	}

	met := metrics.New(prometheus.DefaultRegisterer)
	state := headend.New(cat, jnl, met)

	if jnl != nil {
		if err := jnl.UpsertAssets(ctx, cat.ListAll()); err != nil {
			log.Printf("Asset upsert failed: %v", err)
		}
		state.HydrateFromJournal(ctx)
	}

	engine := dispatch.NewEngine(cat, state.Sim, state.Streams, jnl, state, met)

	// gRPC agent link.
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer()
	pb.RegisterAgentLinkServer(grpcServer, agentlink.NewService(state))

	// Operator HTTP API.
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(state, engine),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("🚀 Agent link listening on %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		log.Printf("🚀 Operator API listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received %s, shutting down gracefully...", sig)
	case err := <-errCh:
		log.Printf("Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
	log.Println("Server stopped")
}
