package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusklink/dusklink/internal/capture"
	"github.com/dusklink/dusklink/internal/config"
	"github.com/dusklink/dusklink/internal/encoder"
	"github.com/dusklink/dusklink/internal/hostpipeline"
	"github.com/dusklink/dusklink/internal/logging"
	"github.com/dusklink/dusklink/internal/server"
	"github.com/dusklink/dusklink/internal/wire"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "dusklink-host",
	Short: "DuskLink host",
	Long:  `DuskLink host - captures this machine's screen and streams it to a connected client.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start capturing, encoding, and serving the display stream",
	Run: func(cmd *cobra.Command, args []string) {
		runHost()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dusklink-host v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/dusklink/host.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.LoadHost.
func initLogging(cfg *config.HostConfig) {
	var output io.Writer = os.Stdout
	logFileFallback := false

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
}

func runHost() {
	cfg, err := config.LoadHost(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)
	log.Info("starting host", "version", version, "listen", cfg.ListenAddr)

	if cfg.MaxFrameSizeOverride > 0 {
		wire.MaxFrameSize = cfg.MaxFrameSizeOverride
		log.Warn("max_frame_size_override active, not for production use", "maxFrameSize", wire.MaxFrameSize)
	}

	encoder.SetProbeObserver(func(ev encoder.ProbeEvent) {
		if ev.Err != nil {
			log.Debug("encoder backend probe failed", "backend", ev.Candidate, "error", ev.Err)
			return
		}
		log.Info("encoder backend probe succeeded", "backend", ev.Candidate)
	})
	log.Info("backend priority order from config", "preferred", cfg.PreferredBackends)

	srv, err := server.New(cfg.ListenAddr)
	if err != nil {
		log.Error("failed to start listener", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	const width, height = 1920, 1080

	if err := srv.SetDisplayConfig(wire.DisplayConfig{Width: width, Height: height, Rotation: 0}); err != nil {
		log.Warn("failed to set initial display config", "error", err)
	}

	// No real per-OS capturer (DXGI/X11/CoreGraphics) is bound yet; the
	// stub source stands in behind the same Source contract a real one
	// would satisfy.
	primary := capture.NewStubSource("stub-primary")
	fallback := capture.NewStubSource("stub-fallback")
	dispatcher := capture.NewDispatcher(primary, fallback)
	dispatcher.SetObserver(func(from, to capture.State) {
		log.Info("capture state transition", "from", from, "to", to)
	})

	pipeline := hostpipeline.New(dispatcher, srv.SendFrame)
	srv.SetInputSink(pipeline.HandleInput)

	enc, err := encoder.New(encoder.Settings{
		Width:       width,
		Height:      height,
		FPS:         cfg.InitialFPS,
		BitrateBps:  int64(cfg.InitialBitrateKbps) * 1000,
		Quality:     cfg.InitialQuality,
		GamingBoost: false,
	}, pipeline.Callback())
	if err != nil {
		log.Error("failed to initialize any encoder backend", "error", err)
		os.Exit(1)
	}
	defer enc.Close()
	log.Info("encoder initialized", "backend", enc.Name(), "hardware", enc.IsHardware())

	pipeline.SetEncoder(enc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := dispatcher.Start(ctx, cfg.DisplayIndex, width, height, cfg.InitialFPS); err != nil {
		log.Error("failed to start capture", "error", err)
		os.Exit(1)
	}
	defer dispatcher.Stop()

	go func() {
		if err := pipeline.Run(ctx); err != nil {
			log.Error("pipeline stopped", "error", err)
		}
	}()

	go func() {
		if err := srv.Serve(); err != nil {
			log.Error("server stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	pipeline.Stop()
	cancel()
}
