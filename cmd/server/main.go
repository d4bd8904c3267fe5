// Package main is the entry point for the singformat API server
package main

import (
	"flag"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/james-see/singformat/pkg/api"
	"github.com/james-see/singformat/pkg/config"
	"github.com/james-see/singformat/pkg/logger"
	"github.com/joho/godotenv"
)

const sentryFlushTimeout = 2 * time.Second

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	port := flag.String("port", "", "Server port (overrides $PORT)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	logger.SetDebug(cfg.Debug)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "singformat@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Debug:            !cfg.IsProduction(),
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("Sentry not configured (SENTRY_DSN not set)")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting server", logger.Fields{
		"port":          cfg.Port,
		"environment":   cfg.Environment,
		"max_upload_mb": cfg.MaxUploadMB,
		"workers":       cfg.Workers,
	})
	log.Printf("Swagger docs available at http://localhost:%s/swagger/index.html", cfg.Port)

	if err := api.StartServer(cfg); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(sentryFlushTimeout)
		log.Fatal("Failed to start server:", err)
	}
}
