package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mpark1306/TempMate12/internal/collector"
	"github.com/mpark1306/TempMate12/internal/config"
	"github.com/mpark1306/TempMate12/internal/controller"
	"github.com/mpark1306/TempMate12/internal/delivery"
	"github.com/mpark1306/TempMate12/internal/httpapi"
	"github.com/mpark1306/TempMate12/internal/lifecycle"
	"github.com/mpark1306/TempMate12/internal/observability"
	"github.com/mpark1306/TempMate12/internal/outcome"
	"github.com/mpark1306/TempMate12/internal/sampler"
	"github.com/mpark1306/TempMate12/internal/sensor"
	"github.com/mpark1306/TempMate12/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	outcome.SetWindow(cfg.OutcomeWindow)

	var tempSensor sensor.Sensor
	var sensorCloser *sensor.BME280
	switch cfg.SensorBackend {
	case "bme280":
		dev, err := sensor.NewBME280(cfg.BME280Address)
		if err != nil {
			logger.Fatal("bme280 sensor", zap.Error(err))
		}
		sensorCloser = dev
		tempSensor = dev
		logger.Info("sensor backend: bme280", zap.Uint16("address", cfg.BME280Address))
	default:
		tempSensor = sensor.NewSimulated(cfg.SimulatedStartC, time.Now().UnixNano())
		logger.Info("sensor backend: simulated", zap.Float64("start_c", cfg.SimulatedStartC))
	}

	client, err := collector.New(cfg.CollectorURL, cfg.CollectorTimeout)
	if err != nil {
		logger.Fatal("collector client", zap.Error(err))
	}

	readingStore := store.New()
	observability.RegisterBufferLengthGauge(readingStore.Len)

	smp := sampler.New(tempSensor, readingStore, logger)
	agent := delivery.NewAgent(client, readingStore, logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.FlushRateLimitRPS), cfg.FlushRateLimitBurst)

	ctrl := controller.New(smp, agent, nil, readingStore, cfg.SampleInterval, cfg.RetryInterval, logger)
	statusSrv := httpapi.NewStatusServer(cfg.StatusAddr, ctrl, readingStore, limiter, logger)
	ctrl.SetStatusService(statusSrv)

	adminHandler := httpapi.NewAdminHandler(ctrl, client, readingStore, cfg.OutcomeWindow, logger)
	adminSrv := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      adminHandler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("admin server starting", zap.String("addr", cfg.AdminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin server", zap.Error(err))
		}
	}()

	runCtx, cancelRun := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := ctrl.Run(runCtx); err != nil && err != context.Canceled {
			logger.Error("controller stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)

	cancelRun()
	<-runDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown", zap.Error(err))
	}
	if err := statusSrv.Stop(); err != nil {
		logger.Error("status server stop", zap.Error(err))
	}

	inFlight := httpapi.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httpapi.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httpapi.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if sensorCloser != nil {
		if err := sensorCloser.Close(); err != nil {
			logger.Error("sensor close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete",
		zap.Int("buffered_undelivered", readingStore.Len()))
}
