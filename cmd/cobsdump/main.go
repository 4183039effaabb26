// cobsdump reads a COBS-framed byte stream from a serial device or a capture
// file and prints every decoded packet as hex.
//
// Encoded bytes go through a fixed-size ring buffer, the same way they do on
// the device's USB receive path, so the tool also shows how a given buffer
// size copes with the stream: overwritten bytes and corrupt packets are
// logged, and counted on the optional prometheus endpoint.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/dcreager/cobs-ring-go/cobs"
	"github.com/dcreager/cobs-ring-go/framed"
	"github.com/dcreager/cobs-ring-go/internal/config"
	"github.com/dcreager/cobs-ring-go/internal/logging"
	"github.com/dcreager/cobs-ring-go/internal/metrics"
	"github.com/dcreager/cobs-ring-go/pump"
	"github.com/dcreager/cobs-ring-go/serialport"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var configPath string
	var listPorts bool
	cfg := config.Default()

	flagSet := pflag.NewFlagSet("cobsdump", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to a TOML config file")
	flagSet.BoolVar(&listPorts, "list", false, "list serial ports and exit")
	flagSet.StringVar(&cfg.Port, "port", cfg.Port, "serial device to read from")
	flagSet.StringVar(&cfg.File, "file", cfg.File, "capture file to read from (- for stdin)")
	flagSet.IntVar(&cfg.Serial.BaudRate, "baud", cfg.Serial.BaudRate, "serial baud rate")
	flagSet.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "ring buffer capacity in bytes")
	flagSet.IntVar(&cfg.MaxPacket, "max-packet", cfg.MaxPacket, "largest decoded packet in bytes")
	flagSet.BoolVar(&cfg.Resume, "resume", cfg.Resume, "keep partial decode progress between polls")
	flagSet.BoolVar(&cfg.ZeroRestore, "zero-restore", cfg.ZeroRestore, "decode chunk boundaries as 0x00 bytes")
	flagSet.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "overwrite undecoded bytes instead of throttling reads")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flagSet.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve prometheus metrics on this address")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(stdout, "usage: cobsdump [--config FILE] (--port DEVICE | --file PATH) [flags]")
		flagSet.SetOutput(stdout)
		flagSet.PrintDefaults()
		return nil
	}

	if listPorts {
		ports, err := serialport.List()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Fprintln(stdout, p)
		}
		return nil
	}

	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = overlayFlags(flagSet, fileCfg, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New("cobsdump", cfg.LogLevel, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	var readerOpts []framed.Option
	readerOpts = append(readerOpts, framed.WithLogger(logger))
	if cfg.Resume {
		readerOpts = append(readerOpts, framed.WithResume())
	}
	if cfg.ZeroRestore {
		readerOpts = append(readerOpts, framed.WithDecoderOptions(cobs.WithZeroRestore()))
	}
	stream := framed.NewStream(framed.New(cfg.BufferSize, readerOpts...))

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		stream.SetObserver(metrics.New(reg))
		go serveMetrics(ctx, logger, cfg.MetricsAddr, reg)
	}

	pumpOpts := []pump.Option{
		pump.WithLogger(logger),
		pump.WithChunkSize(cfg.ReadChunk),
		pump.WithPollInterval(cfg.PollInterval),
		pump.WithThrottle(cfg.Throttle),
	}
	if cfg.Overwrite {
		pumpOpts = append(pumpOpts, pump.WithOverwrite())
	}
	p := pump.New(src, stream, pumpOpts...)

	printPacket := func(packet []byte) error {
		_, err := fmt.Fprintf(stdout, "%4d %s\n", len(packet), hex.EncodeToString(packet))
		return err
	}

	drainCtx, cancelDrain := context.WithCancel(ctx)
	defer cancelDrain()
	runErr := make(chan error, 1)
	go func() {
		err := p.Run(ctx)
		cancelDrain()
		runErr <- err
	}()

	dest := make([]byte, cfg.MaxPacket)
	if err := p.Drain(drainCtx, dest, printPacket); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read input: %w", err)
	}
	if _, err := p.Flush(dest, printPacket); err != nil {
		return err
	}

	stats := stream.Stats()
	logger.Info().
		Uint64("packets", stats.Packets).
		Uint64("corrupt", stats.Corrupt).
		Uint64("bytes_written", stats.BytesWritten).
		Uint64("bytes_dropped", stats.BytesDropped).
		Int("left_over", stream.Buffered()).
		Msg("done")
	return nil
}

// overlayFlags returns fileCfg with every explicitly set flag taken from
// flagCfg.
func overlayFlags(flagSet *pflag.FlagSet, fileCfg, flagCfg config.Config) config.Config {
	cfg := fileCfg
	if flagSet.Changed("port") {
		cfg.Port = flagCfg.Port
	}
	if flagSet.Changed("file") {
		cfg.File = flagCfg.File
	}
	if flagSet.Changed("baud") {
		cfg.Serial.BaudRate = flagCfg.Serial.BaudRate
	}
	if flagSet.Changed("buffer-size") {
		cfg.BufferSize = flagCfg.BufferSize
	}
	if flagSet.Changed("max-packet") {
		cfg.MaxPacket = flagCfg.MaxPacket
	}
	if flagSet.Changed("resume") {
		cfg.Resume = flagCfg.Resume
	}
	if flagSet.Changed("zero-restore") {
		cfg.ZeroRestore = flagCfg.ZeroRestore
	}
	if flagSet.Changed("overwrite") {
		cfg.Overwrite = flagCfg.Overwrite
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = flagCfg.LogLevel
	}
	if flagSet.Changed("metrics-addr") {
		cfg.MetricsAddr = flagCfg.MetricsAddr
	}
	return cfg
}

func openSource(cfg config.Config) (io.ReadCloser, error) {
	switch {
	case cfg.Port != "":
		return serialport.Open(cfg.Port, cfg.Serial)
	case cfg.File == "-":
		return io.NopCloser(os.Stdin), nil
	default:
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("open capture: %w", err)
		}
		return f, nil
	}
}

func serveMetrics(ctx context.Context, logger zerolog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}
