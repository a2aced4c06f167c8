package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusklink/dusklink/internal/clientio"
	"github.com/dusklink/dusklink/internal/config"
	"github.com/dusklink/dusklink/internal/inputuplink"
	"github.com/dusklink/dusklink/internal/logging"
	"github.com/dusklink/dusklink/internal/wire"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "dusklink-client",
	Short: "DuskLink client",
	Long:  `DuskLink client - connects to a host, decodes, and presents its display stream.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a host and run the receive/decode/present loop",
	Run: func(cmd *cobra.Command, args []string) {
		runClient()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dusklink-client v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/dusklink/client.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.LoadClient.
func initLogging(cfg *config.ClientConfig) {
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

func runClient() {
	cfg, err := config.LoadClient(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)
	log.Info("connecting to host", "version", version, "server", cfg.ServerAddr)

	conn, err := net.Dial("tcp", cfg.ServerAddr)
	if err != nil {
		log.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// feed is assigned below, once recv exists to share its buffer pool
	// with; the closures below only run once Run() starts, by which time
	// feed is already set.
	var feed *clientio.DecoderFeed

	recv := clientio.NewReceiver(conn,
		func(dc wire.DisplayConfig) {
			log.Info("display config", "width", dc.Width, "height", dc.Height, "rotation", dc.Rotation)
			if err := feed.Reconfigure(int(dc.Width), int(dc.Height)); err != nil {
				log.Error("failed to (re)configure decoder", "error", err)
			}
		},
		func(buf []byte, size int, receiveTimestampNs int64) {
			feed.Feed(buf, size, receiveTimestampNs)
		},
	)

	feed = clientio.NewDecoderFeed(recv.Pool())
	feed.SetOutputSink(func(frame clientio.DecodedFrame) {
		log.Debug("frame decoded", "presentationUs", frame.PresentationUs, "vsyncAligned", frame.VsyncAligned)
	})

	recv.SetLatencyObserver(func(rtt time.Duration) {
		log.Debug("ping/pong round-trip", "rttMs", rtt.Seconds()*1000)
	})

	uplink := inputuplink.New(conn)
	uplink.SetPredictionEnabled(cfg.MovePredictionEnabled)
	uplink.Start()
	defer uplink.Stop()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			fps, stddev := feed.OutputStats()
			log.Debug("decode stats", "fps", fps, "jitterMs", stddev, "drops", feed.DropCount())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		conn.Close()
	}()

	if err := recv.Run(); err != nil {
		log.Error("receive loop ended", "error", err)
		os.Exit(1)
	}
}
