package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/gin-gonic/gin"
	"github.com/idohaver7/PatrolVision/internal/database"
	"github.com/idohaver7/PatrolVision/internal/geocode"
	"github.com/idohaver7/PatrolVision/internal/handlers"
	"github.com/idohaver7/PatrolVision/internal/metrics"
	"github.com/idohaver7/PatrolVision/internal/natsserver"
	"github.com/idohaver7/PatrolVision/internal/services"
	"github.com/idohaver7/PatrolVision/internal/storage"
	"github.com/joho/godotenv"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.SetHandler(text.New(os.Stderr))
	if lvl, err := log.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}
	if handlers.UsingDevSecret() {
		log.Warn("⚠️  JWT_SECRET is not set; tokens are signed with the development key")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.WithError(err).Fatal("❌ failed to start server")
	}
	defer database.Close()

	if email, password := os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD"); email != "" && password != "" {
		if err := handlers.SeedAdminUser(email, password); err != nil {
			log.WithError(err).Error("❌ failed to seed admin user")
		}
	}

	// Embedded NATS carries violation events to the live feed
	natsCfg := natsserver.DefaultConfig()
	if port, err := strconv.Atoi(getenv("NATS_PORT", "4233")); err == nil {
		natsCfg.Port = port
	}
	natsServer, err := natsserver.New(natsCfg)
	if err != nil {
		log.WithError(err).Fatal("❌ failed to start NATS server")
	}
	defer natsServer.Shutdown()

	feedHub := services.NewFeedHub(natsServer.Conn())
	if err := feedHub.Start(); err != nil {
		log.WithError(err).Fatal("❌ failed to start feed hub")
	}
	go feedHub.Run()
	defer feedHub.Stop()
	handlers.SetFeedHub(feedHub)
	handlers.SetViolationPublisher(services.NewViolationPublisher(natsServer.Conn()))

	uploadsDir := getenv("UPLOADS_DIR", "uploads")
	store, err := storage.NewMediaStore(uploadsDir)
	if err != nil {
		log.WithError(err).Fatal("❌ failed to prepare uploads directory")
	}
	handlers.SetMediaStore(store)
	log.WithField("dir", uploadsDir).Info("📁 serving uploads")

	if os.Getenv("GEOCODER_DISABLED") != "true" {
		nominatim := geocode.NewNominatim(os.Getenv("GEOCODER_URL"), getenv("GEOCODER_USER_AGENT", "PatrolVision/1.0"), 5*time.Second)
		handlers.SetGeocoder(geocode.NewCachedResolver(nominatim, 4096))
	}

	metrics.Register()

	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(uploadsDir, natsServer)

	port := getenv("PORT", "5000")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("🚀 server running on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
}
