package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fverao/powercapd/internal/capture"
	"github.com/fverao/powercapd/internal/config"
	"github.com/fverao/powercapd/internal/device"
	"github.com/fverao/powercapd/internal/history"
	"github.com/fverao/powercapd/internal/logger"
	"github.com/fverao/powercapd/internal/notify/kafkapub"
	"github.com/fverao/powercapd/internal/notify/mqttpub"
	"github.com/fverao/powercapd/internal/observability"
	"github.com/fverao/powercapd/internal/pid"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("another instance appears to be running")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("failed to remove pid file")
		}
	}()

	driver := selectDriver()

	recorder, err := history.NewService(history.Config{
		DBPath:  cfg.HistoryDB,
		Enabled: cfg.History,
	}, logger.Default())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize session history")
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close session history")
		}
	}()

	var metrics *observability.Metrics
	if cfg.MetricsListen != "" {
		registry := prometheus.NewRegistry()
		metrics = observability.New(registry)
		serveMetrics(cfg.MetricsListen, registry)
	}

	controller := capture.NewController(driver, capture.Options{
		LogDir:      cfg.LogDir,
		Location:    cfg.Location(),
		RetryDelay:  time.Duration(cfg.RetryDelay) * time.Second,
		StopTimeout: time.Duration(cfg.StopTimeout) * time.Second,
		History:     recorder,
		Metrics:     metrics,
		Logger:      logger.Default(),
	})

	closers := attachPublishers(controller)
	defer func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}()

	err = controller.Start(capture.Config{
		WindowDuration: time.Duration(cfg.WindowDuration * float64(time.Second)),
		SamplingRate:   cfg.SamplingRate,
		MaxWindows:     cfg.MaxWindows,
		Output:         cfg.Output,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start capture")
	}

	waitForShutdown(controller)

	if err := controller.Stop(); err != nil {
		logger.Error().Err(err).Msg("error stopping capture")
	}
	logger.Info().Msg("Exiting...")
}

func selectDriver() device.Driver {
	if cfg.Simulate {
		logger.Info().Msg("Using simulated device driver")
		return device.NewSimDriver(cfg.SamplingRate)
	}

	// Hardware backends register through the same Driver contract; none is
	// compiled into this build yet.
	logger.Fatal().Msg("no hardware driver available, run with --simulate")

	return nil
}

// attachPublishers wires the configured external sinks onto the window bus
// and returns their teardown functions.
func attachPublishers(controller *capture.Controller) []func() {
	var closers []func()

	if cfg.MQTTBroker != "" {
		pub, err := mqttpub.New(mqttpub.Config{
			Broker: cfg.MQTTBroker,
			Topic:  cfg.MQTTTopic,
		}, logger.Default())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect MQTT publisher")
		}
		if err := controller.Subscribe("mqtt", pub); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe MQTT publisher")
		}
		closers = append(closers, pub.Close)
	}

	if cfg.KafkaBrokers != "" {
		pub := kafkapub.New(kafkapub.Config{
			Brokers: strings.Split(cfg.KafkaBrokers, ","),
			Topic:   cfg.KafkaTopic,
		}, logger.Default())
		if err := controller.Subscribe("kafka", pub); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe Kafka publisher")
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close Kafka publisher")
			}
		})
	}

	return closers
}

func serveMetrics(listen string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		logger.Info().Str("listen", listen).Msg("Metrics endpoint listening")
		if err := http.ListenAndServe(listen, mux); err != nil {
			logger.Error().Err(err).Msg("metrics endpoint failed")
		}
	}()
}

// waitForShutdown blocks until a termination signal arrives or the session
// ends on its own, e.g. after reaching the window cap.
func waitForShutdown(controller *capture.Controller) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigs:
			logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
			return
		case <-ticker.C:
			if !controller.Status().Running {
				return
			}
		}
	}
}
