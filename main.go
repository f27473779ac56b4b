package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/mhdawson/MqttDlnaPlay/internal/activity"
	"github.com/mhdawson/MqttDlnaPlay/internal/bridge"
	"github.com/mhdawson/MqttDlnaPlay/internal/buildinfo"
	"github.com/mhdawson/MqttDlnaPlay/internal/config"
	"github.com/mhdawson/MqttDlnaPlay/internal/diagnostics"
	"github.com/mhdawson/MqttDlnaPlay/internal/discovery"
	"github.com/mhdawson/MqttDlnaPlay/internal/lifecycle"
	"github.com/mhdawson/MqttDlnaPlay/internal/mqttbus"
	"github.com/mhdawson/MqttDlnaPlay/internal/renderer"
	"github.com/mhdawson/MqttDlnaPlay/internal/upnp"
	"github.com/mhdawson/MqttDlnaPlay/internal/web"
)

type selfTestOutput struct {
	Server struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"server"`
	Environment diagnostics.EnvironmentReport `json:"environment"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	selfTest := flag.Bool("self-test", false, "check the configuration and host environment then exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *selfTest {
		out := selfTestOutput{
			Environment: diagnostics.DetectEnvironment(cfg),
		}
		out.Server.Name = "mqttdlnaplay"
		out.Server.Version = buildinfo.Version

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	runCtx, stopSignals := signal.NotifyContext(context.Background(), lifecycle.TerminationSignals()...)
	defer stopSignals()

	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Info(
		"bridge_start",
		slog.String("server", "mqttdlnaplay"),
		slog.String("version", buildinfo.Version),
		slog.String("log_level", logLevel.String()),
		slog.String("topic", cfg.MQTT.Topic),
	)

	activityLog := activity.NewLog(cfg.Activity.MaxRecent)
	discoveryClient := discovery.NewClient(cfg.Discovery.Timeout.Std(), logger)
	controlClient := upnp.NewControlClient(nil)

	targets := make([]renderer.Target, len(cfg.Renderers))
	for i, r := range cfg.Renderers {
		targets[i] = renderer.Target{
			ID:         r.ID,
			Name:       r.Name,
			UDN:        r.UDN,
			ControlURL: r.ControlURL,
		}
	}
	rendererManager := renderer.NewManager(
		runCtx, targets, controlClient, discoveryClient,
		cfg.Playback.SettleDelay.Std(), logger, activityLog.Append,
	)

	var mqttClient *mqttbus.Client
	commandBridge := bridge.New(
		bridge.Config{
			Topic:          cfg.MQTT.Topic,
			ServerName:     cfg.MediaServer.Name,
			SearchRoot:     cfg.MediaServer.SearchRoot,
			WhatsNewDays:   cfg.WhatsNew.WindowDays,
			ExcludedSeries: cfg.WhatsNew.ExcludedSeries,
		},
		discoveryClient, controlClient, rendererManager,
		func(text string) { mqttClient.PublishResponse(text) },
		activityLog.Append,
		logger,
	)

	mqttClient, err = mqttbus.New(runCtx, cfg.MQTT, commandBridge.HandleMessage, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := mqttClient.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	webServer := web.NewServer(cfg.Web.Listen, cfg.Title, activityLog, logger)
	webErrCh := make(chan error, 1)
	go func() {
		webErrCh <- webServer.Run(runCtx)
	}()

	var runErr error
	select {
	case runErr = <-webErrCh:
	case <-runCtx.Done():
		runErr = <-webErrCh
	}
	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		logger.Warn("bridge_stopping", slog.String("reason", runErr.Error()))
	} else {
		logger.Info("bridge_stopping", slog.String("reason", "signal"))
		runErr = nil
	}

	mqttClient.Disconnect()

	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid log_level=%q; defaulting to info\n", raw)
		return slog.LevelInfo
	}
}
