package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rfidpanel/internal/config"
	"rfidpanel/internal/controller"
	"rfidpanel/internal/events"
	"rfidpanel/internal/inventory"
	"rfidpanel/internal/transport"
	"rfidpanel/internal/web"
)

func main() {
	envFile := os.Getenv("PANEL_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		logrus.WithError(err).Warn("env file not loaded")
	}

	cfg := config.Load()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logger.WithField("service", "rfid-panel")

	profiles, err := config.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		log.WithError(err).Fatal("load profiles")
	}

	broker := events.NewBroker(log.WithField("component", "events"))
	hub := events.NewHub(log.WithField("component", "ws"))
	broker.Attach(hub)

	if cfg.RedisAddr != "" {
		sink, err := events.NewRedisSink(log.WithField("component", "redis"), cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			log.WithError(err).Warn("redis sink unavailable")
		} else {
			broker.Attach(sink)
		}
	}
	if cfg.MQTTHost != "" {
		sink, err := events.NewMQTTSink(log.WithField("component", "mqtt"), cfg.MQTTHost, cfg.MQTTPort, cfg.MQTTClientID, cfg.MQTTPrefix)
		if err != nil {
			log.WithError(err).Warn("mqtt sink unavailable")
		} else {
			broker.Attach(sink)
		}
	}

	tags := inventory.New(log.WithField("component", "tags"), nil)

	policy := controller.DefaultPolicy()
	policy.CommandTimeout = cfg.CommandTimeout
	policy.CommandRetries = cfg.CommandRetries
	policy.StopGrace = cfg.StopGrace

	ctrl := controller.New(
		log.WithField("component", "controller"),
		transport.NewSerialPort(),
		policy,
		controller.Callbacks{
			OnTag: func(s controller.Sighting) {
				tags.Ingest(inventory.Sighting{
					EPC:     s.EPC,
					Antenna: s.Antenna,
					RSSI:    s.RSSI,
					Seen:    s.Seen,
				})
				broker.Publish(events.EventTagDetected, events.TagDetected{
					EPC:       s.EPC,
					Antenna:   s.Antenna,
					RSSI:      s.RSSI,
					Timestamp: s.Seen.Format("15:04:05"),
				})
			},
			OnEnd: func(reason string) {
				broker.Publish(events.EventInventoryEnd, events.InventoryEnd{Reason: reason})
			},
			OnStatus: func(message string) {
				broker.Publish(events.EventStatus, events.StatusNotice{Message: message})
			},
		},
	)

	server := web.NewServer(log.WithField("component", "web"), cfg, profiles, ctrl, tags, hub.HandleWS)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("control panel listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Disconnect(); err != nil {
		log.WithError(err).Warn("disconnect on shutdown")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := broker.Close(); err != nil {
		log.WithError(err).Warn("event broker close")
	}
}
