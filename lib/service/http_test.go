// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/ingestd/lib/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
		fmt.Fprintf(writer, "ok")
	})
}

// startServer runs server in the background until the test ends and
// waits for it to be ready. The returned channel receives Serve's result.
func startServer(t *testing.T, server *HTTPServer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	// t.Context() is cancelled when the test deadline passes, so no
	// wall-clock timeout needed.
	select {
	case <-server.Ready():
	case <-t.Context().Done():
		t.Fatal("server did not become ready before test deadline")
	}
	return cancel, serveDone
}

func expectOK(t *testing.T, client *http.Client, url string) {
	t.Helper()
	response, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("GET %s status = %d, want 200", url, response.StatusCode)
	}
	responseBody, _ := io.ReadAll(response.Body)
	if string(responseBody) != "ok" {
		t.Errorf("GET %s body = %q, want %q", url, responseBody, "ok")
	}
}

func expectStopped(t *testing.T, serveDone <-chan error) {
	t.Helper()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-t.Context().Done():
		t.Fatal("server did not shut down before test deadline")
	}
}

func TestHTTPServerLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := NewHTTPServer(HTTPServerConfig{
		Address:         "127.0.0.1:0", // OS-assigned port
		Handler:         okHandler(),
		ShutdownTimeout: 2 * time.Second,
		Logger:          logger,
	})
	cancel, serveDone := startServer(t, server)

	expectOK(t, http.DefaultClient, "http://"+server.Addr().String()+"/test")

	cancel()
	expectStopped(t, serveDone)
}

func TestHTTPServerUnixSocket(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	socketPath := filepath.Join(testutil.SocketDir(t), "public.sock")

	// A socket file left behind by a previous run.
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	server := NewHTTPServer(HTTPServerConfig{
		Network:         "unix",
		Address:         socketPath,
		Handler:         okHandler(),
		ShutdownTimeout: 2 * time.Second,
		Logger:          logger,
	})
	cancel, serveDone := startServer(t, server)

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}}
	expectOK(t, client, "http://ingestd/live/index.m3u8")

	cancel()
	expectStopped(t, serveDone)

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket file should be removed after shutdown, stat err = %v", err)
	}
}

func TestHTTPServerListener(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	server := NewHTTPServer(HTTPServerConfig{
		Listener: listener,
		Handler:  okHandler(),
		Logger:   logger,
	})
	cancel, serveDone := startServer(t, server)

	if server.Addr().String() != listener.Addr().String() {
		t.Errorf("Addr() = %s, want the listener's %s", server.Addr(), listener.Addr())
	}
	expectOK(t, http.DefaultClient, "http://"+listener.Addr().String()+"/")

	cancel()
	expectStopped(t, serveDone)
}

func TestHTTPServerShutdownCutsOffLongRequests(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	entered := make(chan struct{})
	handler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
		writer.(http.Flusher).Flush()
		close(entered)
		<-request.Context().Done()
	})

	server := NewHTTPServer(HTTPServerConfig{
		Address:         "127.0.0.1:0",
		Handler:         handler,
		ShutdownTimeout: 50 * time.Millisecond,
		Logger:          logger,
	})
	cancel, serveDone := startServer(t, server)

	response, err := http.Get("http://" + server.Addr().String() + "/live")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	testutil.RequireClosed(t, entered, 5*time.Second, "handler never started")

	cancel()
	expectStopped(t, serveDone)
}

func TestInheritedListenerInvalid(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "not-a-socket")
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	// A regular file is not a listening socket.
	duplicate, err := unix.Dup(int(file.Fd()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := InheritedListener(uintptr(duplicate), "regular"); err == nil {
		t.Error("InheritedListener on a regular file should fail")
	}
}

func TestHTTPServerPanicsOnMissingConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	tests := []struct {
		name   string
		config HTTPServerConfig
	}{
		{
			name:   "missing_address_and_listener",
			config: HTTPServerConfig{Handler: handler, Logger: logger},
		},
		{
			name:   "missing_handler",
			config: HTTPServerConfig{Address: ":0", Logger: logger},
		},
		{
			name:   "missing_logger",
			config: HTTPServerConfig{Address: ":0", Handler: handler},
		},
		{
			name:   "unsupported_network",
			config: HTTPServerConfig{Network: "udp", Address: ":0", Handler: handler, Logger: logger},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("NewHTTPServer did not panic")
				}
			}()
			NewHTTPServer(tt.config)
		})
	}
}
