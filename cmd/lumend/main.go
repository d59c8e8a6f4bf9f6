// Command lumend runs the event-dispatch engine against a configuration
// file. It is the surrounding application spec.md §6 calls out as owning
// the config path, game log path, error log path, and debug flag — none
// of that is part of the core, all of it lives here. There is no edit-mode
// flag.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenctl/lumen"
	"github.com/lumenctl/lumen/internal/config"
	"github.com/lumenctl/lumen/internal/serial"
)

var (
	configPath     string
	gameLogPath    string
	errorLog       string
	debug          bool
	identifier     uint32
	wsAddr         string
	serialPort     string
	serialBaud     int
	serialChecksum bool
)

var rootCmd = &cobra.Command{
	Use:   "lumend",
	Short: "Run the lumen event-dispatch engine against a configuration file",
	RunE:  runServe,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file path (required)")
	rootCmd.Flags().StringVar(&gameLogPath, "game-log", "", "append-only game log path")
	rootCmd.Flags().StringVar(&errorLog, "error-log", "", "structured error log path (default stderr)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	rootCmd.Flags().Uint32Var(&identifier, "game-id", 0, "per-instance game_id filter for inbound links")
	rootCmd.Flags().StringVar(&wsAddr, "ws-addr", "", "address to serve the reactive update stream over WebSocket, e.g. :8765 (disabled if empty)")
	rootCmd.Flags().StringVar(&serialPort, "serial-port", "", "physical serial port device for the Serial Link, e.g. /dev/ttyUSB0 (disabled if empty)")
	rootCmd.Flags().IntVar(&serialBaud, "serial-baud", 9600, "baud rate for --serial-port")
	rootCmd.Flags().BoolVar(&serialChecksum, "serial-checksum", true, "enable the XOR checksum field on Serial Link frames")
	_ = rootCmd.MarkFlagRequired("config")
}

func buildLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if errorLog != "" {
		cfg.OutputPaths = []string{errorLog}
		cfg.ErrorOutputPaths = []string{errorLog}
	}
	return cfg.Build()
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	doc, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	opts := []lumen.Option{lumen.WithLogger(logger), lumen.WithMetrics()}
	if gameLogPath != "" {
		opts = append(opts, lumen.WithGameLog(gameLogPath))
	}
	if cmd.Flags().Changed("game-id") {
		opts = append(opts, lumen.WithIdentifier(identifier))
	}

	engine, err := lumen.New(doc, opts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if serialPort != "" {
		cfg := serial.DefaultPortConfig(serialPort, serialBaud)
		link := serial.New(serial.OpenPortFunc(cfg), serial.WithChecksums(serialChecksum), serial.WithLogger(logger))
		if err := link.Start(); err != nil {
			return fmt.Errorf("start serial link: %w", err)
		}
		engine.AddSerialLink(link)
	}

	engine.Start()
	logger.Info("lumen engine started", zap.String("config", configPath))

	var wsSrv *http.Server
	if wsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/stream", engine.WebSocketHandler())
		wsSrv = &http.Server{Addr: wsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("websocket feed listening", zap.String("addr", wsAddr))
			if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("websocket feed stopped", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if wsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = wsSrv.Shutdown(ctx)
	}
	engine.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
