// ABOUTME: Entry point for the dmastream player
// ABOUTME: Parses CLI flags and drives a file through the playback pipeline
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dmastream/dmastream-go/internal/alloc"
	"github.com/dmastream/dmastream-go/internal/channel"
	"github.com/dmastream/dmastream-go/internal/config"
	"github.com/dmastream/dmastream-go/internal/metrics"
	"github.com/dmastream/dmastream-go/internal/source"
	"github.com/dmastream/dmastream-go/internal/ui"
	"github.com/dmastream/dmastream-go/internal/version"
	"github.com/dmastream/dmastream-go/pkg/dma"
	"github.com/dmastream/dmastream-go/pkg/pcm"
	"github.com/dmastream/dmastream-go/pkg/stream"
)

var (
	configPath  = flag.String("config", "", "TOML config file path")
	output      = flag.String("output", "", "Output channel: oto, loopback or remote")
	remoteAddr  = flag.String("remote-addr", "", "Sink address for the remote output (host:port)")
	bufferBytes = flag.Int("buffer", 0, "Requested ring buffer size in bytes")
	periodBytes = flag.Int("period", 0, "Requested period size in bytes")
	periods     = flag.Int("periods", 0, "Requested period count")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	logFile     = flag.String("log-file", "dmastream-player.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.wav|file.mp3>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	input := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(&cfg)

	useTUI := !cfg.NoTUI

	// Set up logging
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s %s", version.Product, version.Version)

	src, err := source.Open(input)
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}
	defer func() { _ = src.Close() }()

	ch, err := openChannel(cfg)
	if err != nil {
		log.Fatalf("Failed to open output channel: %v", err)
	}

	ctrl := stream.New(stream.Options{
		Allocator: alloc.NewCoherent(),
		Channel:   ch,
		OnError: func(err error) {
			log.Printf("Stream error: %v", err)
		},
	})

	if err := ctrl.Open(); err != nil {
		log.Fatalf("Failed to open stream: %v", err)
	}
	defer func() { _ = ctrl.Close() }()

	if err := ctrl.Configure(stream.Config{
		Format:      src.Format(),
		BufferBytes: cfg.BufferBytes,
		PeriodBytes: cfg.PeriodBytes,
		Periods:     cfg.Periods,
	}); err != nil {
		log.Fatalf("Failed to configure stream: %v", err)
	}
	if err := ctrl.Prepare(); err != nil {
		log.Fatalf("Failed to prepare stream: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		log.Fatalf("Failed to start stream: %v", err)
	}

	eff := ctrl.Config()
	log.Printf("Stream running: %s, buffer=%d period=%d periods=%d",
		eff.Format, eff.BufferBytes, eff.PeriodBytes, eff.Periods)

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			log.Printf("Serving metrics on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	// TUI setup
	var tuiProg *tea.Program
	var tuiCtrl *ui.Control

	if useTUI {
		tuiCtrl = ui.NewControl()
		tuiProg, err = ui.Run(tuiCtrl)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go func() { _, _ = tuiProg.Run() }()

		tuiProg.Send(ui.StatusMsg{
			Stats:       ctrl.Stats(),
			File:        input,
			Output:      cfg.Output,
			Format:      eff.Format.String(),
			RingBytes:   eff.BufferBytes,
			PeriodBytes: eff.PeriodBytes,
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pumpDone := make(chan error, 1)
	go func() { pumpDone <- pump(ctrl, src, eff) }()

	statsDone := make(chan struct{})
	go statsUpdateLoop(ctrl, tuiProg, statsDone)

	running := true
loop:
	for {
		var toggle, quit chan struct{}
		if tuiCtrl != nil {
			toggle = tuiCtrl.Toggle
			quit = tuiCtrl.Quit
		}

		select {
		case err := <-pumpDone:
			if err != nil {
				log.Printf("Playback failed: %v", err)
			} else {
				log.Printf("Playback finished")
			}
			break loop
		case <-sigChan:
			log.Printf("Shutdown signal received")
			break loop
		case <-quit:
			log.Printf("Received quit signal from TUI")
			break loop
		case <-toggle:
			if running {
				if err := ctrl.Pause(); err != nil {
					log.Printf("Pause failed: %v", err)
					continue
				}
			} else {
				if err := ctrl.Resume(); err != nil {
					log.Printf("Resume failed: %v", err)
					continue
				}
			}
			running = !running
			log.Printf("Stream %s", ctrl.State())
		}
	}

	close(statsDone)
	if tuiProg != nil {
		tuiProg.Quit()
	}

	if ctrl.State() == stream.Running || ctrl.State() == stream.Paused {
		if err := ctrl.Stop(); err != nil {
			log.Printf("Error stopping stream: %v", err)
		}
	}
	if err := ctrl.Close(); err != nil {
		log.Printf("Error closing stream: %v", err)
	}

	log.Printf("Player stopped")
}

// applyFlags overlays explicitly set command line flags on the file config.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output = *output
		case "remote-addr":
			cfg.RemoteAddr = *remoteAddr
		case "buffer":
			cfg.BufferBytes = *bufferBytes
		case "period":
			cfg.PeriodBytes = *periodBytes
		case "periods":
			cfg.Periods = *periods
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "log-file":
			cfg.LogFile = *logFile
		case "no-tui":
			cfg.NoTUI = *noTUI
		}
	})
	if cfg.LogFile == "" {
		cfg.LogFile = *logFile
	}
}

// openChannel creates the transfer channel named by the config.
func openChannel(cfg config.Config) (dma.Channel, error) {
	switch cfg.Output {
	case "oto":
		return channel.NewOto()
	case "loopback":
		return channel.NewLoopback(10 * time.Millisecond), nil
	case "remote":
		return channel.DialRemote(cfg.RemoteAddr)
	}
	return nil, fmt.Errorf("unknown output %q", cfg.Output)
}

// pump feeds the ring one period per tick, paced at the stream rate, and
// acknowledges each chunk so the controller converts and submits it.
func pump(ctrl *stream.Controller, src source.Source, eff stream.Config) error {
	ring := ctrl.Ring()
	period := time.Duration(eff.PeriodBytes/pcm.FrameBytes) * time.Second /
		time.Duration(eff.Format.SampleRate)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	chunk := make([]byte, eff.PeriodBytes)
	var appl uint64

	for range ticker.C {
		if ctrl.State() == stream.Paused {
			continue
		}
		if ctrl.State() != stream.Running {
			return nil
		}

		n, err := src.ReadFrames(chunk)
		if n > 0 {
			fill := n * pcm.FrameBytes
			start := int(appl % uint64(len(ring)))
			first := copy(ring[start:], chunk[:fill])
			copy(ring, chunk[first:fill])

			appl += uint64(fill)
			if ackErr := ctrl.Ack(appl); ackErr != nil {
				return fmt.Errorf("ack at %d failed: %w", appl, ackErr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
	}
	return nil
}

// statsUpdateLoop periodically publishes stream stats to the TUI and the
// metrics registry.
func statsUpdateLoop(ctrl *stream.Controller, tuiProg *tea.Program, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			stats := ctrl.Stats()
			pos := int64(ctrl.Position())
			metrics.Update(stats, pos)
			if tuiProg != nil {
				tuiProg.Send(ui.StatusMsg{Stats: stats, Position: pos})
			}
		}
	}
}
