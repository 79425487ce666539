package main

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"

	"vrx/station/pkg/config"
	"vrx/station/pkg/frame"
	"vrx/station/pkg/logger"
	"vrx/station/pkg/monitor"
	"vrx/station/pkg/station"
)

var (
	serveConfigPath  string
	serveAddr        string
	serveInteractive bool
	serveSaveDir     string
	serveMetricsSecs int
	serveDiscovery   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ground station receiver",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServeConfig()
		if err != nil {
			return err
		}

		st, err := station.New(cfg)
		if err != nil {
			return err
		}
		if err := st.Start(); err != nil {
			return err
		}

		if serveMetricsSecs > 0 {
			go monitor.LogPeriodic(time.Duration(serveMetricsSecs) * time.Second)
		}

		// Stand-in render consumer: drains the mailbox at a display-like
		// cadence and frees every frame it takes.
		ctx, cancel := context.WithCancel(context.Background())
		consumerDone := make(chan struct{})
		go runConsumer(ctx, st, serveSaveDir, consumerDone)

		stop := func() {
			cancel()
			<-consumerDone
			st.Stop()
		}

		if serveInteractive {
			fmt.Println("VRX Ground Station Interactive Shell")
			fmt.Println("Type 'help' for commands.")

			prompt.New(
				func(in string) { serveExecutor(in, st, stop) },
				serveCompleter,
				prompt.OptionPrefix("vrx> "),
				prompt.OptionTitle("VRX Ground Station"),
			).Run()
			return nil
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Sugar.Info("[Serve] shutdown signal received")
		stop()
		return nil
	},
}

func loadServeConfig() (*config.Config, error) {
	var cfg *config.Config
	if serveConfigPath != "" {
		loaded, err := config.Load(serveConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	if serveDiscovery {
		cfg.Discovery.Enabled = true
	}
	return cfg, cfg.Validate()
}

// runConsumer dequeues decoded frames the way a renderer would, freeing
// each one, and optionally writes a periodic JPEG snapshot of the latest.
func runConsumer(ctx context.Context, st *station.Station, saveDir string, done chan<- struct{}) {
	defer close(done)

	var lastSave time.Time
	for {
		if ctx.Err() != nil {
			return
		}
		f := st.Mailbox().Dequeue(100 * time.Millisecond)
		if f == nil {
			continue
		}
		if saveDir != "" && time.Since(lastSave) > time.Second {
			if err := saveSnapshot(saveDir, f); err != nil {
				logger.Sugar.Warnf("[Consumer] snapshot failed: %v", err)
			} else {
				lastSave = time.Now()
			}
		}
		f.Free()
	}
}

func saveSnapshot(dir string, f *frame.DecodedFrame) error {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i+1 < len(f.Buf); i += 2 {
		pix := uint16(f.Buf[i]) | uint16(f.Buf[i+1])<<8
		o := i * 2
		img.Pix[o+0] = uint8(pix>>11) << 3
		img.Pix[o+1] = uint8(pix>>5&0x3F) << 2
		img.Pix[o+2] = uint8(pix&0x1F) << 3
		img.Pix[o+3] = 0xFF
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot-%d.jpg", time.Now().Unix()))
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 85})
}

func serveExecutor(in string, st *station.Station, stop func()) {
	in = strings.TrimSpace(in)
	blocks := strings.Fields(in)
	if len(blocks) == 0 {
		return
	}

	switch blocks[0] {
	case "exit", "quit":
		fmt.Println("Stopping station...")
		stop()
		os.Exit(0)
	case "status":
		fmt.Print(st.Status())
	case "stats":
		s := st.Stats()
		fmt.Printf("%+v\n", s)
	case "help":
		fmt.Println("Available commands:")
		fmt.Println("  status   - Show pipeline status summary")
		fmt.Println("  stats    - Dump the raw stats snapshot")
		fmt.Println("  exit     - Stop the station and exit")
	default:
		fmt.Println("Unknown command: " + blocks[0])
	}
}

func serveCompleter(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "status", Description: "Show pipeline status summary"},
		{Text: "stats", Description: "Dump the raw stats snapshot"},
		{Text: "exit", Description: "Stop the station and exit"},
		{Text: "help", Description: "Show help"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to a yaml config file")
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address override (host:port)")
	serveCmd.Flags().BoolVarP(&serveInteractive, "interactive", "i", false, "Start in interactive mode")
	serveCmd.Flags().StringVar(&serveSaveDir, "save-dir", "", "Directory for periodic JPEG snapshots of the stream")
	serveCmd.Flags().IntVar(&serveMetricsSecs, "metrics-interval", 30, "Seconds between metrics log lines (0 disables)")
	serveCmd.Flags().BoolVar(&serveDiscovery, "discovery", false, "Advertise this station over mDNS")
}
