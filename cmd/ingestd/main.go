// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ingestd accepts file uploads over HTTP and serves every file, including
// the ones still being uploaded, to any number of readers.
//
// Two listeners are served. The private one (TCP, normally loopback)
// takes PUT and DELETE from the packager and reports status at
// /_status. The public one (a Unix socket behind the web frontend)
// answers GET and HEAD. A GET for a file whose upload is in progress
// streams the upload live; readers that fall behind the in-memory
// buffer catch up from the file.
//
// Configuration comes from the YAML file named by --config or
// INGESTD_CONFIG. With listen.inherit_fds the listeners are taken from
// file descriptors 0 (public) and 3 (private) instead of being bound.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ingestd/lib/config"
	"github.com/bureau-foundation/ingestd/lib/filestore"
	"github.com/bureau-foundation/ingestd/lib/ingest"
	"github.com/bureau-foundation/ingestd/lib/process"
	"github.com/bureau-foundation/ingestd/lib/service"
	"github.com/bureau-foundation/ingestd/lib/version"
)

// Descriptors the service manager passes with listen.inherit_fds.
const (
	publicListenerFD  = 0
	privateListenerFD = 3
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("ingestd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to ingestd.yaml (default: $INGESTD_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("ingestd %s\n", version.Full())
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := service.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := service.NewLogger(level)

	root, err := filestore.NewRoot(cfg.Storage.WebRoot)
	if err != nil {
		return err
	}

	server, err := ingest.NewServer(ingest.ServerConfig{
		Root:              root,
		RingCapacity:      cfg.Ring.Capacity.Int(),
		RingReadChunk:     cfg.Ring.ReadChunk.Int(),
		WriteChunk:        cfg.Storage.WriteChunk.Int(),
		ReadChunk:         cfg.Storage.ReadChunk.Int(),
		UploadIdleTimeout: cfg.HTTP.UploadIdleTimeout,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	publicConfig := service.HTTPServerConfig{
		Network:           "unix",
		Address:           cfg.Listen.PublicSocket,
		Handler:           server.PublicHandler(),
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		Logger:            logger.With("listener", "public"),
	}
	privateConfig := service.HTTPServerConfig{
		Network:           "tcp",
		Address:           cfg.Listen.PrivateAddress,
		Handler:           server.PrivateHandler(),
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		Logger:            logger.With("listener", "private"),
	}
	if cfg.Listen.InheritFDs {
		if publicConfig.Listener, err = service.InheritedListener(publicListenerFD, "public"); err != nil {
			return err
		}
		if privateConfig.Listener, err = service.InheritedListener(privateListenerFD, "private"); err != nil {
			publicConfig.Listener.Close()
			return err
		}
	}

	logger.Info("ingestd starting",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"web_root", root.Directory(),
		"ring_capacity", cfg.Ring.Capacity.String(),
		"inherit_fds", cfg.Listen.InheritFDs,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, logger, service.NewHTTPServer(publicConfig), service.NewHTTPServer(privateConfig))
}

// loadConfig reads the file named by --config, or by INGESTD_CONFIG
// when the flag is empty, and validates it.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serve runs every server until ctx is cancelled or one of them fails,
// then shuts the rest down and waits for all of them.
func serve(ctx context.Context, logger *slog.Logger, servers ...*service.HTTPServer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(servers))
	for _, server := range servers {
		go func() {
			results <- server.Serve(ctx)
		}()
	}

	go func() {
		addresses := make([]string, 0, len(servers))
		for _, server := range servers {
			select {
			case <-server.Ready():
				addresses = append(addresses, server.Addr().String())
			case <-ctx.Done():
				return
			}
		}
		logger.Info("ingestd ready", "listeners", addresses)
	}()

	var errs []error
	for range servers {
		if err := <-results; err != nil {
			logger.Error("http server failed", "error", err)
			errs = append(errs, err)
			cancel()
		}
	}
	logger.Info("ingestd stopped")
	return errors.Join(errs...)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: ingestd [--config PATH]\n\n")
	fmt.Fprintf(os.Stderr, "Accepts uploads on the private listener and serves files, live or\n")
	fmt.Fprintf(os.Stderr, "at rest, on the public listener.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flagSet.PrintDefaults()
}
