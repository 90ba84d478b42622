package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
)

const defaultChunkSize = 256 * 1024

// ServeConfig holds configuration for the haulserv binary.
type ServeConfig struct {
	Addr       string // HTTP/WebSocket listen address
	QUICAddr   string // UDP listen address for QUIC uploads; empty disables QUIC
	ReceiveDir string // directory completed uploads land in
	LogLevel   string
}

// HaulConfig holds configuration for the haul client binary.
type HaulConfig struct {
	ServerURL string   // haulserv base URL (ws/quic backends)
	Backend   string   // "local", "ws" or "quic"
	DestDir   string   // destination directory (local backend only)
	Files     []string // files to upload
	ChunkSize int      // bytes per send
	LogLevel  string
}

// ParseServeConfig parses server configuration from flags and environment
// variables. Flags take precedence over environment variables.
// Defaults: addr=":8080", receiveDir="received", logLevel="info", QUIC off.
func ParseServeConfig() ServeConfig {
	return parseServeConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseServeConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServeConfigWithFlagSet(fs *flag.FlagSet, args []string) ServeConfig {
	cfg := ServeConfig{
		Addr:       ":8080",
		QUICAddr:   "",
		ReceiveDir: "received",
		LogLevel:   "info",
	}

	// Read from environment first
	if addr := os.Getenv("BYTEHAUL_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if quicAddr := os.Getenv("BYTEHAUL_QUIC_ADDR"); quicAddr != "" {
		cfg.QUICAddr = quicAddr
	}
	if dir := os.Getenv("BYTEHAUL_RECEIVE_DIR"); dir != "" {
		cfg.ReceiveDir = dir
	}
	if logLevel := os.Getenv("BYTEHAUL_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Flags override environment
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address for WebSocket uploads")
	fs.StringVar(&cfg.QUICAddr, "quic-addr", cfg.QUICAddr, "UDP listen address for QUIC uploads (empty disables)")
	fs.StringVar(&cfg.ReceiveDir, "receive-dir", cfg.ReceiveDir, "directory to store received uploads")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.Parse(args)

	return cfg
}

// ParseHaulConfig parses client configuration from flags and environment
// variables. Flags take precedence over environment variables. Remaining
// positional arguments are treated as files to upload, in addition to any
// repeated --file flags.
func ParseHaulConfig() HaulConfig {
	return parseHaulConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseHaulConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseHaulConfigWithFlagSet(fs *flag.FlagSet, args []string) HaulConfig {
	cfg := HaulConfig{
		ServerURL: "http://localhost:8080",
		Backend:   "ws",
		DestDir:   ".",
		ChunkSize: defaultChunkSize,
		LogLevel:  "info",
	}

	// Read from environment first
	if serverURL := os.Getenv("BYTEHAUL_SERVER_URL"); serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if backend := os.Getenv("BYTEHAUL_BACKEND"); backend != "" {
		cfg.Backend = backend
	}
	if destDir := os.Getenv("BYTEHAUL_DEST_DIR"); destDir != "" {
		cfg.DestDir = destDir
	}
	if logLevel := os.Getenv("BYTEHAUL_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if chunk := os.Getenv("BYTEHAUL_CHUNK_SIZE"); chunk != "" {
		if n, err := strconv.Atoi(chunk); err == nil && n > 0 {
			cfg.ChunkSize = n
		}
	}

	// Flags override environment
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "haul server URL")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "transfer backend (local, ws, quic)")
	fs.StringVar(&cfg.DestDir, "dest-dir", cfg.DestDir, "destination directory (local backend)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "chunk size in bytes")

	// Handle repeatable --file flag
	files := make([]string, 0)
	fs.Var((*stringSlice)(&files), "file", "file to upload (repeatable)")

	fs.Parse(args)

	files = append(files, fs.Args()...)
	cfg.Files = files

	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = defaultChunkSize
	}

	return cfg
}

// stringSlice implements flag.Value for repeatable string flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func (s *stringSlice) Get() interface{} {
	return []string(*s)
}

var _ flag.Value = (*stringSlice)(nil)
var _ flag.Getter = (*stringSlice)(nil)
