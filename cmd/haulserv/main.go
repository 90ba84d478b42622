package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytehaul/bytehaul/internal/config"
	"github.com/bytehaul/bytehaul/internal/logging"
	"github.com/bytehaul/bytehaul/internal/quicwire"
	"github.com/bytehaul/bytehaul/internal/server"
)

const serverVersion = "v0.1.0"

func main() {
	if hasHelpFlag(os.Args[1:]) {
		printServerUsage()
		return
	}
	if hasVersionFlag(os.Args[1:]) {
		fmt.Fprintln(os.Stdout, serverVersion)
		return
	}

	cfg := config.ParseServeConfig()
	logger := logging.New("haulserv", cfg.LogLevel)

	if err := os.MkdirAll(cfg.ReceiveDir, 0o755); err != nil {
		logger.Error("failed to create receive dir", "dir", cfg.ReceiveDir, "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg.ReceiveDir, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.HandleHealth)
	mux.HandleFunc("/upload", srv.HandleUpload)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.QUICAddr != "" {
		udpConn, err := net.ListenPacket("udp", cfg.QUICAddr)
		if err != nil {
			logger.Error("failed to bind QUIC address", "addr", cfg.QUICAddr, "error", err)
			os.Exit(1)
		}
		listener, err := quicwire.Listen(udpConn, logger)
		if err != nil {
			logger.Error("failed to start QUIC listener", "addr", cfg.QUICAddr, "error", err)
			os.Exit(1)
		}
		defer listener.Close()
		go func() {
			if err := srv.ServeQUIC(ctx, listener); err != nil && ctx.Err() == nil {
				logger.Error("quic listener failed", "error", err)
			}
		}()
		fmt.Fprintf(os.Stdout, "quic listener started addr=%s\n", cfg.QUICAddr)
	}

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stdout, "starting server addr=%s receive_dir=%s\n", cfg.Addr, cfg.ReceiveDir)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func printServerUsage() {
	fmt.Fprintln(os.Stderr, "usage: haulserv [flags]")
	fmt.Fprintln(os.Stderr, "  --addr ADDR         listen address for WebSocket uploads (default :8080)")
	fmt.Fprintln(os.Stderr, "  --quic-addr ADDR    UDP listen address for QUIC uploads (empty disables)")
	fmt.Fprintln(os.Stderr, "  --receive-dir DIR   directory to store received uploads (default received)")
	fmt.Fprintln(os.Stderr, "  --log-level LEVEL   debug, info, warn, error (default info)")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}
