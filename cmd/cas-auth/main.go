package main

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yousefmoazzam/hebi-launcher/internal/auth"
	"github.com/yousefmoazzam/hebi-launcher/internal/cas"
	"github.com/yousefmoazzam/hebi-launcher/internal/casauth"
	"github.com/yousefmoazzam/hebi-launcher/internal/config"
	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
	"github.com/yousefmoazzam/hebi-launcher/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Initialize("hebi-cas-auth", cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	log.Info().Msg("Starting hebi auth gateway...")

	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(gin.Recovery())
	router.Use(middleware.AccessLog())
	router.Use(middleware.CORS())

	handler := casauth.NewHandler(
		cas.NewClient(cfg.CASServerURL, cfg.ServiceURL),
		auth.NewTokenManager(cfg.JWTKey),
	)
	handler.RegisterRoutes(router)

	addr := "0.0.0.0:8086"
	if cfg.ProductionMode {
		addr = "127.0.0.1:8086"
	}

	log.Info().Str("addr", addr).Msg("Auth gateway listening")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
}
