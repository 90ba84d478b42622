package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytehaul/bytehaul/internal/backend/local"
	"github.com/bytehaul/bytehaul/internal/backend/quicback"
	"github.com/bytehaul/bytehaul/internal/backend/wsback"
	"github.com/bytehaul/bytehaul/internal/config"
	"github.com/bytehaul/bytehaul/internal/logging"
	"github.com/bytehaul/bytehaul/internal/progress"
	"github.com/bytehaul/bytehaul/pkg/transfer"
)

const version = "v0.1.0"

// backend is what every transfer backend exposes to the CLI: the service
// boundary plus a way to submit a local file.
type backend interface {
	transfer.Service
	Submit(src string) (*transfer.Request, error)
}

func main() {
	if hasHelpFlag(os.Args[1:]) {
		printUsage()
		return
	}
	if hasVersionFlag(os.Args[1:]) {
		fmt.Fprintln(os.Stdout, version)
		return
	}

	cfg := config.ParseHaulConfig()
	logger := logging.New("haul", cfg.LogLevel)

	if len(cfg.Files) == 0 {
		fmt.Fprintln(os.Stderr, "no files to upload")
		printUsage()
		os.Exit(2)
	}

	svc, err := buildBackend(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "haul: %v\n", err)
		os.Exit(2)
	}

	// Ctrl-C cancels the in-flight upload instead of killing the process
	// outright; the coordinator tells the backend to remove the transfer.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := transfer.NewCoordinator(svc, logger)

	exitCode := 0
	for _, src := range cfg.Files {
		err := uploadOne(ctx, coord, svc, src)
		switch {
		case errors.Is(err, transfer.ErrCanceled):
			fmt.Fprintln(os.Stderr, "canceled")
			os.Exit(130)
		case err != nil:
			fmt.Fprintf(os.Stderr, "haul: %s: %v\n", src, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func buildBackend(cfg config.HaulConfig, logger *slog.Logger) (backend, error) {
	switch cfg.Backend {
	case "local":
		return local.New(cfg.DestDir, logger), nil
	case "ws":
		return wsback.New(cfg.ServerURL, cfg.ChunkSize, logger), nil
	case "quic":
		return quicback.New(quicAddr(cfg.ServerURL), cfg.ChunkSize, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func uploadOne(ctx context.Context, coord *transfer.Coordinator, svc backend, src string) error {
	req, err := svc.Submit(src)
	if err != nil {
		return err
	}
	// The coordinator never validates the kind; that is on us.
	if req.Kind != transfer.KindUpload {
		return fmt.Errorf("request %s is not an upload", req.ID)
	}

	meter := progress.NewMeter()
	meter.Start(req.Size)
	var lastPrint int64

	pending := coord.Attach(ctx, req, func(p transfer.Progress) {
		meter.SetDone(p.BytesSent)
		if p.TotalBytes > 0 {
			meter.SetTotal(p.TotalBytes)
		}
		if progress.ShouldPrint(&lastPrint, progress.DefaultPrintInterval) {
			printProgress(req.Name, meter.Snapshot())
		}
	})

	res, err := pending.Wait(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stdout)
		return err
	}

	printProgress(req.Name, meter.Snapshot())
	fmt.Fprintf(os.Stdout, "\n%s uploaded (%s)", req.Name, formatBytes(res.BytesSent))
	if res.Location != "" {
		fmt.Fprintf(os.Stdout, " -> %s", res.Location)
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

func printProgress(name string, stats progress.Stats) {
	line := fmt.Sprintf("\r%s  %5.1f%%  %s/s", name, stats.Percent, formatBytes(int64(stats.RateBps)))
	if stats.ETA > 0 {
		line += fmt.Sprintf("  eta %s", stats.ETA.Round(time.Second))
	}
	fmt.Fprint(os.Stdout, line)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

// quicAddr extracts a UDP host:port from the server URL. A bare host:port is
// accepted as-is.
func quicAddr(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return serverURL
	}
	return u.Host
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: haul [flags] <file>...")
	fmt.Fprintln(os.Stderr, "  --server-url URL   haul server URL (default http://localhost:8080)")
	fmt.Fprintln(os.Stderr, "  --backend NAME     transfer backend: local, ws, quic (default ws)")
	fmt.Fprintln(os.Stderr, "  --dest-dir DIR     destination directory for the local backend")
	fmt.Fprintln(os.Stderr, "  --file PATH        file to upload (repeatable)")
	fmt.Fprintln(os.Stderr, "  --chunk-size N     chunk size in bytes (default 262144)")
	fmt.Fprintln(os.Stderr, "  --log-level LEVEL  debug, info, warn, error (default info)")
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
