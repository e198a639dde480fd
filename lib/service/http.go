// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// HTTPServer serves HTTP on one listener. The ingest daemon runs two:
// the public one on a Unix socket behind the web frontend, and the
// private one on TCP where uploads arrive.
//
// Serve(ctx) blocks until the context is cancelled and active requests
// drain. Request bodies have no read or write timeouts, since an upload
// or a live download lasts as long as the stream it carries. Only the
// request header must arrive promptly.
type HTTPServer struct {
	network  string
	address  string
	listener net.Listener
	handler  http.Handler
	logger   *slog.Logger

	// shutdownTimeout is the maximum time to wait for active
	// requests to complete after the context is cancelled.
	shutdownTimeout   time.Duration
	readHeaderTimeout time.Duration

	// ready is closed after the listener is bound and the server
	// is accepting connections.
	ready chan struct{}

	// addr is the resolved listen address, available after the
	// server starts accepting connections (after ready is closed).
	addr net.Addr
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Network is "tcp" or "unix". Defaults to "tcp".
	Network string

	// Address is the listen address: host:port for TCP, a socket path
	// for Unix. Required unless Listener is set.
	Address string

	// Listener, if set, is served instead of binding Address. Used for
	// sockets inherited from the service manager.
	Listener net.Listener

	// Handler is the HTTP handler for incoming requests. Required.
	Handler http.Handler

	// ShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during graceful shutdown. Defaults to
	// 10 seconds if zero. Requests still running after it are cut off.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds how long a client may take to send the
	// request header. Defaults to 10 seconds if zero.
	ReadHeaderTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewHTTPServer creates a server for the configured listener. Call
// Serve to start accepting connections.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" && config.Listener == nil {
		panic("service.HTTPServer: Address or Listener is required")
	}
	if config.Handler == nil {
		panic("service.HTTPServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.HTTPServer: Logger is required")
	}

	network := config.Network
	if network == "" {
		network = "tcp"
	}
	if network != "tcp" && network != "unix" {
		panic(fmt.Sprintf("service.HTTPServer: unsupported network %q", network))
	}
	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	headerTimeout := config.ReadHeaderTimeout
	if headerTimeout == 0 {
		headerTimeout = 10 * time.Second
	}

	return &HTTPServer{
		network:           network,
		address:           config.Address,
		listener:          config.Listener,
		handler:           config.Handler,
		logger:            config.Logger,
		shutdownTimeout:   timeout,
		readHeaderTimeout: headerTimeout,
		ready:             make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the server is bound
// and accepting connections.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed. When the configured address uses port 0 the resolved
// address carries the port the OS assigned.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Serve starts accepting HTTP connections. Blocks until ctx is
// cancelled, then performs graceful shutdown: stops accepting new
// connections and waits up to ShutdownTimeout for active requests
// to complete before closing the remaining connections.
//
// For a Unix socket bound by the server itself, a stale socket file at
// the path is removed first and the socket is removed on return.
// The socket file behind an inherited listener is left in place.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.readHeaderTimeout,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("http server listening", "network", s.addr.Network(), "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down", "address", s.addr.String())
	case err := <-serveDone:
		if err != nil {
			return fmt.Errorf("serving %s: %w", s.addr, err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		// Long-lived uploads and live downloads outlast any timeout.
		s.logger.Warn("http server shutdown timed out, closing connections",
			"address", s.addr.String(),
			"error", err,
		)
		server.Close()
	}

	s.logger.Info("http server stopped", "address", s.addr.String())
	return nil
}

func (s *HTTPServer) listen() (net.Listener, error) {
	if s.listener != nil {
		return s.listener, nil
	}
	if s.network == "unix" {
		if err := os.Remove(s.address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", s.address, err)
		}
	}
	listener, err := net.Listen(s.network, s.address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.address, err)
	}
	// Closing a UnixListener unlinks the socket file it created.
	return listener, nil
}

// InheritedListener wraps a listening socket passed to the process as
// file descriptor fd, as systemd socket activation does.
func InheritedListener(fd uintptr, name string) (net.Listener, error) {
	file := os.NewFile(fd, name)
	if file == nil {
		return nil, fmt.Errorf("inherited listener %s: invalid file descriptor %d", name, fd)
	}
	defer file.Close()
	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("inherited listener %s (fd %d): %w", name, fd, err)
	}
	return listener, nil
}
