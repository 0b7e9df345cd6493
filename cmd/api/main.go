package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tribo.social/internal/config"
	"tribo.social/internal/httpapi"
	"tribo.social/internal/obs"
	"tribo.social/internal/social"
	"tribo.social/internal/store"
	"tribo.social/internal/store/pg"
	"tribo.social/internal/store/snapfile"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	var cfg config.Config
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)

	// One snapshot store: Postgres when a DSN is set, a JSON file otherwise.
	var (
		snaps   store.Store
		probe   httpapi.ReadyProbe
		pgStore *pg.Store
	)
	if cfg.PostgresDSN != "" {
		var err error
		pgStore, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		snaps = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		snaps = snapfile.New(cfg.SnapshotPath)
	}

	registry := social.NewRegistry(social.WithTokenSecret(cfg.TokenSecret))

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	snap, err := snaps.Load(loadCtx)
	cancelLoad()
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}
	if err := registry.Restore(context.Background(), snap); err != nil {
		log.Fatalf("restore snapshot: %v", err)
	}

	api := httpapi.New(registry, probe, cfg.Version,
		httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tribo-api %s on %s", cfg.Version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)

	// Persist the final state before letting go of the process.
	if err := snaps.Save(ctx, registry.Export(ctx)); err != nil {
		log.Printf("save snapshot: %v", err)
	}
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
