// voiceapi/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"voiceapi/api"
	"voiceapi/config"
	"voiceapi/engine"
	"voiceapi/task"
	"voiceapi/voices"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize the synthesis engine. A configured command takes
	// precedence over the HTTP service URL.
	var eng engine.Engine
	if cfg.EngineCmd != "" {
		eng, err = engine.NewProcessEngine(cfg.EngineCmd, engine.Throttle{
			CPU:      cfg.ThrottleCPU,
			FreeMem:  cfg.ThrottleFreeMem,
			FreeDisk: cfg.ThrottleFreeDisk,
		})
		if err != nil {
			log.Fatalf("Failed to initialize process engine: %v", err)
		}
	} else {
		eng = engine.NewHTTPEngine(cfg.EngineURL, cfg.GenTimeout)
	}

	// 3. Build the orchestration core
	registry := voices.NewRegistry(voices.Defaults())
	store := task.NewStore()
	scheduler, err := task.NewScheduler(cfg, store, eng, registry)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}
	status := task.NewStatusService(store)
	sweeper := task.NewSweeper(store, scheduler.OutputDir(), cfg.KeepTasks, cfg.OutputMaxAge)

	// 4. Set up router and server
	router := api.SetupRouter(scheduler, status, registry, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// 5. Start background services and HTTP server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	sweeper.Start(ctx)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 6. Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	stop()
	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
