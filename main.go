package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/visiontrack/visiontrack/internal/api"
	"github.com/visiontrack/visiontrack/internal/config"
	"github.com/visiontrack/visiontrack/internal/db"
	"github.com/visiontrack/visiontrack/internal/pipeline"
	"github.com/visiontrack/visiontrack/internal/pose"
	"github.com/visiontrack/visiontrack/internal/surveillance"
	"github.com/visiontrack/visiontrack/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	udpAddr    = flag.String("udp", ":9999", "UDP pose frame listen address")
	dbFile     = flag.String("db", "visiontrack.db", "SQLite database file")
	migrations = flag.String("migrations", "./migrations", "Migrations directory")
	configFile = flag.String("config", "", "Tuning config JSON file (optional)")
	zoneFile   = flag.String("zones", "zones.json", "Surveillance zone JSON file")
	mode       = flag.String("mode", "fitness", "Analysis mode: fitness or surveillance")
	autoDetect = flag.Bool("auto-detect", false, "Auto-detect the exercise per person")
	retainDays = flag.Int("retain-days", 0, "Delete sessions older than this many days on startup (0 keeps everything)")
	autoStart  = flag.Bool("auto-start", true, "Start a session on boot")
)

func main() {
	flag.Parse()

	log.Printf("visiontrack %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	runMode, ok := pipeline.ParseMode(*mode)
	if !ok {
		log.Fatalf("unknown mode %q", *mode)
	}

	tuning := config.DefaultTuningConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	zones, err := surveillance.LoadZones(*zoneFile)
	if err != nil {
		log.Fatalf("failed to load zones: %v", err)
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()
	if err := store.MigrateUp(*migrations); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	if *retainDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -*retainDays)
		removed, err := store.CleanupOldData(cutoff)
		if err != nil {
			log.Printf("failed to clean up old sessions: %v", err)
		} else if removed > 0 {
			log.Printf("removed %d sessions older than %d days", removed, *retainDays)
		}
	}

	source := pose.NewUDPSource(pose.UDPSourceConfig{
		Address:       *udpAddr,
		MinVisibility: tuning.GetMinVisibility(),
	})

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Mode:   runMode,
		Source: source,
		Store:  store,
		Tuning: tuning,
		Zones:  zones,
	})
	runner.SetAutoDetect(*autoDetect)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP source error: %v", err)
			stop()
		}
		log.Print("UDP source routine terminated")
	}()

	if *autoStart {
		if err := runner.Start(ctx); err != nil {
			log.Fatalf("failed to start pipeline: %v", err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		server := api.NewServer(api.ServerConfig{
			Address: *listen,
			Runner:  runner,
			Store:   store,
		})
		if err := server.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
		log.Print("HTTP server routine stopped")
	}()

	wg.Wait()
	runner.Stop()
	log.Print("graceful shutdown complete")
}
