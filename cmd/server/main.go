package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/rs/cors"

	"github.com/subtrack/nativebridge/internal/bridge"
	"github.com/subtrack/nativebridge/internal/capture"
	"github.com/subtrack/nativebridge/internal/config"
	"github.com/subtrack/nativebridge/internal/logger"
	"github.com/subtrack/nativebridge/internal/metrics"
	"github.com/subtrack/nativebridge/internal/ocr"
	"github.com/subtrack/nativebridge/internal/ocr/tesseract"
	"github.com/subtrack/nativebridge/internal/scan"
)

const (
	foregroundEngine = "foreground"
	backgroundEngine = "background"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("🚀 starting subtrack bridge",
		"version", version.Info(),
		"instance_id", logger.GetInstanceID())

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector("subtrack_bridge"),
	)
	m := metrics.New(reg)

	// The foreground engine is the UI-attached context. The background engine
	// is created from it and shared process-wide through the holder.
	foreground := bridge.NewEngine(foregroundEngine, log)
	var holder bridge.Holder

	// Document scanning
	languages := ocr.TesseractLanguages(cfg.OCRLanguages)
	pipeline := scan.NewPipeline(newScanner(cfg), tesseract.New(languages), scan.Options{
		MaxConcurrency: cfg.OCRMaxConcurrency,
		Metrics:        m,
	}, log)
	scanHandler := scan.NewHandler(pipeline, log)
	foreground.MethodChannel(cfg.Channels.OCR).SetMethodCallHandler(scanHandler.HandleMethodCall)
	log.Info("✅ document scan ready", "channel", cfg.Channels.OCR, "languages", languages)

	// Notification capture
	captureService := capture.NewService(
		capture.HolderProvider(&holder, cfg.Channels.Control, cfg.Channels.Stream),
		capture.Options{
			AppID:        cfg.AppID,
			Registry:     newRegistry(cfg),
			Settings:     newSettingsOpener(cfg, log),
			EmitRemovals: cfg.EmitRemovals,
			Metrics:      m,
		}, log)

	background := capture.RegisterForeground(foreground, cfg.Channels.Background, &holder, func() *bridge.Engine {
		return bridge.NewEngine(backgroundEngine, log)
	}, log)

	if err := captureService.OnCreate(); err != nil {
		log.Error("notification capture inactive", "error", err)
	}

	resolve := func(name string) *bridge.Engine {
		switch name {
		case foregroundEngine:
			return foreground
		case backgroundEngine:
			return holder.Current()
		}
		return nil
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery(), bridge.RequestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"capture":      captureService.State().String(),
			"scanner":      pipelineScannerState(cfg),
			"backgroundUp": holder.Current() != nil,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	api := router.Group("/")
	bridge.RegisterRoutes(api, resolve, log, cfg.StreamWriteTimeout)
	capture.NewHandler(captureService, log).RegisterRoutes(api)
	scanHandler.RegisterRoutes(api)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})

	// Optional NATS transport, one subject tree per engine.
	var natsServers []*bridge.NATSServer
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NatsURL,
			nats.Name("subtrack-bridge-"+logger.GetInstanceID()),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Error("failed to connect to NATS, continuing without it", "error", err, "url", cfg.NatsURL)
		} else {
			conn := bridge.WrapNATSConn(nc)
			for name, engine := range map[string]*bridge.Engine{foregroundEngine: foreground, backgroundEngine: background} {
				srv := bridge.NewNATSServer(conn, engine, cfg.NatsSubjectPrefix+"."+name, log)
				if err := srv.Start(); err != nil {
					log.Error("failed to start NATS bridge", "error", err, "engine", name)
					continue
				}
				natsServers = append(natsServers, srv)
			}
		}
	}

	// Permission watcher
	watchCtx, stopWatch := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	if cfg.PermissionWatchSchedule != "" {
		watcher, err := capture.NewPermissionWatcher(captureService, cfg.PermissionWatchSchedule, m, log)
		if err != nil {
			log.Error("permission watcher disabled", "error", err)
			close(watchDone)
		} else {
			go func() {
				defer close(watchDone)
				watcher.Run(watchCtx)
			}()
		}
	} else {
		close(watchDone)
	}

	port := ":" + cfg.Port
	srv := &http.Server{
		Addr:    port,
		Handler: corsHandler.Handler(router),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()
	log.Info("🔁 bridge listening on " + port)

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 shutting down bridge...")

	stopWatch()
	<-watchDone

	for _, s := range natsServers {
		if err := s.Stop(); err != nil {
			log.Warn("NATS bridge stop returned errors", "error", err)
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Warn("failed to drain NATS connection", "error", err)
		}
	}

	captureService.OnDestroy()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	holder.Destroy()
	log.Info("✅ bridge exited")
}

func newScanner(cfg *config.Config) scan.Scanner {
	if cfg.ScanInboxDir == "" {
		return scan.UnavailableScanner{}
	}
	return scan.DirectoryScanner{Dir: cfg.ScanInboxDir, Consume: true}
}

func pipelineScannerState(cfg *config.Config) string {
	if newScanner(cfg).Available() {
		return "available"
	}
	return "unavailable"
}

func newRegistry(cfg *config.Config) capture.Registry {
	if cfg.EnabledListenersFile != "" {
		return capture.FileRegistry{Path: cfg.EnabledListenersFile}
	}
	return capture.StaticRegistry(cfg.EnabledListeners)
}

func newSettingsOpener(cfg *config.Config, log *logger.Logger) capture.SettingsOpener {
	if len(cfg.SettingsCommand) > 0 {
		return capture.CommandOpener{Command: cfg.SettingsCommand, Logger: log}
	}
	return capture.LogOpener{Logger: log}
}

func splitOrigins(value string) []string {
	var origins []string
	for _, o := range strings.Split(value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
