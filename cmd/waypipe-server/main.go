// Command waypipe-server is a thin wrapper around the supervisor package.
// Argument parsing here is deliberately minimal: the full command-line
// surface (socket discovery, SSH wrapping, etc.) is out of scope; this
// binary exists to give supervisor.RunServer a runnable entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mstoeckl/waypipe-go/internal/config"
	"github.com/mstoeckl/waypipe-go/internal/supervisor"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

func main() {
	var (
		socketAddr  = flag.String("socket", "", "channel address to dial or listen on (unix path, tcp host:port, or ws(s)://...)")
		display     = flag.String("display", "wayland-0", "WAYLAND_DISPLAY name or absolute path for the display socket")
		controlPath = flag.String("control-pipe", "", "path to a control FIFO accepting migration target lines (enables reconnection support)")
		oneshot     = flag.Bool("oneshot", false, "run in oneshot mode: the application is handed a single WAYLAND_SOCKET fd instead of a display socket")
		unlinkEnd   = flag.Bool("unlink-at-end", true, "remove the display socket when the application exits")
		compression = flag.String("compression", "lz4", "diff payload compression: none, lz4, or zstd")
		compLevel   = flag.Int("compression-level", 0, "compression level (recorded in the config but not applied; lz4 and zstd use their default levels)")
		threads     = flag.Int("threads", config.DefaultThreads, "worker pool size")
		logLevel    = flag.String("log-level", "info", "log level: error, warn, info, or debug")
		loginShell  = flag.Bool("login-shell", false, "when no application is given, run $SHELL as a login shell")
	)
	flag.Parse()

	level, ok := wplog.ParseLevel(strings.ToLower(*logLevel))
	log := wplog.New("waypipe-server", level)
	if !ok {
		log.Warnf("unrecognized log level %q, defaulting to info", *logLevel)
	}

	if *socketAddr == "" {
		log.Fatalf("-socket is required")
	}

	mode, err := parseCompressionMode(*compression)
	if err != nil {
		log.Fatalf("%s", err)
	}

	cfg, err := config.New(config.Compression{Mode: mode, Level: *compLevel}, config.VideoOff, *threads, "", false)
	if err != nil {
		log.Fatalf("building config: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	params := supervisor.Params{
		SocketAddr:         *socketAddr,
		WaylandDisplay:     *display,
		ControlPath:        *controlPath,
		Config:             cfg,
		Oneshot:            *oneshot,
		UnlinkAtEnd:        *unlinkEnd,
		Argv:               flag.Args(),
		LoginShellIfBackup: *loginShell,
	}

	result, err := supervisor.RunServer(ctx, log, params)
	if err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
	os.Exit(result.ExitCode)
}

func parseCompressionMode(name string) (config.CompressionMode, error) {
	switch strings.ToLower(name) {
	case "none":
		return config.CompressionNone, nil
	case "lz4":
		return config.CompressionLZ4, nil
	case "zstd":
		return config.CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unrecognized compression mode %q", name)
	}
}
