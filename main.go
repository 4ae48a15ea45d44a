package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/atpg"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/config"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/database"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/handlers"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/logging"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/term"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/watcher"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/workspace"
)

func main() {
	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	roots, err := config.WorkspaceRoots()
	if err != nil {
		log.Fatalf("Workspace roots: %v", err)
	}
	resolver, err := workspace.NewResolver(roots...)
	if err != nil {
		log.Fatalf("Workspace resolver: %v", err)
	}
	handlers.Resolver = resolver
	log.Printf("Workspace roots: %v", resolver.Roots())

	registry := term.NewRegistry(resolver, term.Options{
		MaxSessions:    config.Cfg.MaxSessions,
		KillGrace:      config.Cfg.KillGrace,
		PersistentIdle: config.Cfg.PersistentIdle,
		EphemeralIdle:  config.Cfg.EphemeralIdle,
		Shell:          config.Cfg.Shell,
	})
	handlers.Registry = registry
	handlers.HeartbeatInterval = config.Cfg.HeartbeatInterval
	handlers.HeartbeatTimeout = config.Cfg.HeartbeatTimeout

	runner := atpg.NewRunner(config.Cfg.AtpgBinary, resolver)
	handlers.Runner = runner

	monitor := term.NewMonitor(registry)
	retention := time.Duration(config.Cfg.JobHistoryDays) * 24 * time.Hour
	if err := monitor.AddJob("@daily", func() {
		if n := runner.Prune(retention); n > 0 {
			log.Printf("Pruned %d finished job record(s)", n)
		}
	}); err != nil {
		log.Fatalf("Schedule job pruning: %v", err)
	}
	if err := monitor.Start(time.Minute); err != nil {
		log.Fatalf("Start monitor: %v", err)
	}

	wt, err := watcher.New(resolver.Roots())
	if err != nil {
		log.Printf("WARNING: file watcher unavailable: %v", err)
	} else if err := wt.Start(); err != nil {
		log.Printf("WARNING: file watcher start failed: %v", err)
	} else {
		handlers.Watcher = wt
	}

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: handlers.NewRouter(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	monitor.Stop()
	if handlers.Watcher != nil {
		handlers.Watcher.Stop()
	}
	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
