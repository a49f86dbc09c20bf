package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dammysspp/YT-SP/internal/config"
	"github.com/dammysspp/YT-SP/internal/events"
	"github.com/dammysspp/YT-SP/internal/handlers"
	"github.com/dammysspp/YT-SP/internal/history"
	"github.com/dammysspp/YT-SP/internal/registry"
	"github.com/dammysspp/YT-SP/internal/resolver"
	"github.com/dammysspp/YT-SP/internal/scheduler"
	"github.com/dammysspp/YT-SP/internal/ytdlp"
)

func main() {
	cfg := config.Load()

	hist, err := history.Open(cfg.HistoryDB)
	if err != nil {
		log.Fatal("Failed to open history store:", err)
	}

	reg := registry.New()
	broadcaster := events.New(cfg.ClientBuffer)
	fetcher := ytdlp.New(cfg.YtdlpPath)
	res := resolver.New(fetcher)

	sched := scheduler.New(reg, hist, broadcaster, fetcher, cfg.MaxConcurrent)
	sched.Start()

	r := gin.Default()

	// CORS Setup
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:5174", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.New(cfg, res, reg, sched, hist, broadcaster).Register(r)

	// Background cleanup of stale files in the download directory.
	if cfg.CleanupEnabled {
		go func() {
			ticker := time.NewTicker(1 * time.Hour)
			for range ticker.C {
				files, _ := filepath.Glob(filepath.Join(cfg.DownloadDir, "*"))
				for _, f := range files {
					info, err := os.Stat(f)
					if err == nil && !info.IsDir() && time.Since(info.ModTime()) > cfg.CleanupMaxAge {
						os.Remove(f)
						log.Println("Deleted old file:", f)
					}
				}
			}
		}()
	}

	server := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on %s...", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to run server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown:", err)
	}
}
