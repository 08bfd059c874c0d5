package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/yousefmoazzam/hebi-launcher/internal/activity"
	"github.com/yousefmoazzam/hebi-launcher/internal/auth"
	"github.com/yousefmoazzam/hebi-launcher/internal/config"
	"github.com/yousefmoazzam/hebi-launcher/internal/directory"
	"github.com/yousefmoazzam/hebi-launcher/internal/events"
	"github.com/yousefmoazzam/hebi-launcher/internal/handlers"
	"github.com/yousefmoazzam/hebi-launcher/internal/hub"
	"github.com/yousefmoazzam/hebi-launcher/internal/k8s"
	"github.com/yousefmoazzam/hebi-launcher/internal/lifecycle"
	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
	"github.com/yousefmoazzam/hebi-launcher/internal/manifest"
	"github.com/yousefmoazzam/hebi-launcher/internal/middleware"
)

const defaultSessionImage = "hebi/session:latest"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet; write to stderr and exit.
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Initialize("hebi-launcher", cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	log.Info().Msg("Starting hebi launcher...")

	cluster, err := k8s.NewClient(cfg.InCluster)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Kubernetes client")
	}

	publisher, err := events.NewPublisher(cfg.NATSURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect event publisher, continuing without events")
		publisher, _ = events.NewPublisher("")
	}
	defer publisher.Close()
	if publisher.Enabled() {
		log.Info().Msg("Lifecycle event publishing enabled")
	}

	tracker := activity.NewTracker()
	store := activity.NewStore(cfg.ActivityFilePath)

	sessionImage := os.Getenv("SESSION_IMAGE")
	if sessionImage == "" {
		sessionImage = defaultSessionImage
	}

	controller := lifecycle.NewController(
		lifecycle.Config{
			PodReadyTimeout:  cfg.PodReadyTimeout,
			InactivityPeriod: cfg.InactivityPeriod,
			CASServer:        cfg.CASServerURL,
			WebsocketServer:  "https://" + k8s.IngressHost,
		},
		cluster,
		k8s.NewIngressMutator(cluster),
		directory.NewLDAPDirectory(cfg.LDAPServerURL),
		manifest.NewRenderer(sessionImage),
		tracker,
		store,
		publisher,
	)

	// Restore activity timestamps from the previous launcher before the
	// event channel starts absorbing new signals.
	lifecycle.RestoreActivity(controller)

	channel := hub.NewHub(func(sessionURL string) {
		fedid, err := activity.UserFromSessionURL(sessionURL)
		if err != nil {
			logger.Activity().Warn().Err(err).Msg("Discarding activity event with bad session URL")
			return
		}
		tracker.Touch(fedid)
	})
	go channel.Run()

	tasks := lifecycle.NewTasks(controller, channel)
	if err := tasks.Start(lifecycle.TaskIntervals{
		Heartbeat:     cfg.HeartbeatInterval,
		InactiveCheck: cfg.InactiveCheckInterval,
		Snapshot:      cfg.SnapshotInterval,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to start periodic tasks")
	}
	defer tasks.Stop()

	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(gin.Recovery())
	router.Use(middleware.AccessLog())
	router.Use(middleware.CORS())

	handler := handlers.NewHandler(controller, auth.NewTokenManager(cfg.JWTKey), channel)
	handler.RegisterRoutes(router)

	addr := "0.0.0.0:8085"
	if cfg.ProductionMode {
		addr = "127.0.0.1:8085"
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Hebi launcher has started running")
		if err := router.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// SIGINT/SIGTERM stop the process; in-flight sessions are not drained,
	// their activity state survives via the snapshot.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Hebi launcher is stopping")
}
