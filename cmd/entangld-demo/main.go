// Command entangld-demo runs a single store.Store behind an HTTP
// surface (auth, get/set/push/subscribe/callable REST, SSE) and
// optionally attaches it to remote stores over a length-prefixed JSON
// socket transport.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entangld-go/entangld/auth"
	"github.com/entangld-go/entangld/handlers"
	"github.com/entangld-go/entangld/internal/config"
	"github.com/entangld-go/entangld/message"
	"github.com/entangld-go/entangld/paramschema"
	"github.com/entangld-go/entangld/store"
	"github.com/entangld-go/entangld/transport"
)

// remote identifies a peer connection by the namespace name it
// handshakes with: the generic parameter store.Store[R] is
// instantiated at.
type remote = string

func main() {
	configPath := flag.String("c", "", "Path to a YAML config file")
	peerAddr := flag.String("peer", "", "Address to listen on for inbound store attachments (empty disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	s := store.New[remote](store.WithLogger[remote](slog.Default()))

	for path, uri := range cfg.Schemas {
		schema, err := paramschema.Compile(uri)
		if err != nil {
			log.Fatalf("compiling schema for %q: %v", path, err)
		}
		s.RegisterParamSchema(path, schema)
	}

	hub := transport.NewHub[remote](slog.Default())
	if err := s.Transmit(hub.Send); err != nil {
		log.Fatalf("wiring transmit: %v", err)
	}

	for _, m := range cfg.Mounts {
		if err := dialMount(context.Background(), s, hub, m); err != nil {
			log.Fatalf("attaching mount %q: %v", m.Namespace, err)
		}
	}

	if *peerAddr != "" {
		ln, err := net.Listen("tcp", *peerAddr)
		if err != nil {
			log.Fatalf("listening for peers on %s: %v", *peerAddr, err)
		}
		go acceptPeers(ln, s, hub)
		defer ln.Close()
	}

	tokenDuration := time.Duration(cfg.Auth.TokenHours) * time.Hour
	if tokenDuration <= 0 {
		tokenDuration = time.Hour
	}
	authManager := auth.NewAuthManager(tokenDuration, auth.WithLoginPath(cfg.Auth.LoginPath))
	if cfg.Auth.UsersFile != "" {
		if err := authManager.LoadUsers(cfg.Auth.UsersFile); err != nil {
			log.Fatalf("loading users file: %v", err)
		}
	}
	authHandler := auth.NewAuthHandler(authManager)

	storeHandler := handlers.New(s, "/v1/", slog.Default())

	mux := http.NewServeMux()
	mux.Handle(cfg.Auth.LoginPath, http.HandlerFunc(authHandler.HandleRequest))
	mux.Handle("/v1/", authManager.Middleware(storeHandler))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		server.Close()
	}()

	slog.Info("entangld-demo listening", "addr", cfg.Server.Addr)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("server closed", "error", err)
	} else {
		slog.Info("server closed")
	}
}

// dialMount connects to m.Addr, handshakes m.Namespace as this side's
// identity, registers the connection with hub under m.Namespace, and
// attaches the remote into s.
func dialMount(ctx context.Context, s *store.Store[remote], hub *transport.Hub[remote], m config.MountConfig) error {
	nc, err := net.Dial("tcp", m.Addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", m.Addr, err)
	}
	if _, err := fmt.Fprintf(nc, "%s\n", m.Namespace); err != nil {
		nc.Close()
		return fmt.Errorf("handshaking %s: %w", m.Addr, err)
	}

	conn := transport.NewConn(nc)
	hub.Add(m.Namespace, conn, func(msg message.Message, _ remote) {
		if err := s.Receive(ctx, msg, ref(m.Namespace)); err != nil {
			slog.Warn("receive from mount failed", "namespace", m.Namespace, "err", err)
		}
	})
	if err := s.Attach(ctx, m.Namespace, m.Namespace); err != nil {
		return fmt.Errorf("attaching %s: %w", m.Namespace, err)
	}
	return nil
}

// acceptPeers handles inbound connections from remote stores mounting
// this store under a namespace they announce in a handshake line.
func acceptPeers(ln net.Listener, s *store.Store[remote], hub *transport.Hub[remote]) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			slog.Warn("peer listener closed", "err", err)
			return
		}
		go handlePeer(nc, s, hub)
	}
}

func handlePeer(nc net.Conn, s *store.Store[remote], hub *transport.Hub[remote]) {
	reader := bufio.NewReader(nc)
	namespace, err := reader.ReadString('\n')
	if err != nil {
		slog.Warn("peer handshake failed", "err", err)
		nc.Close()
		return
	}
	namespace = namespace[:len(namespace)-1]

	conn := transport.NewConnFromReader(nc, reader)
	ctx := context.Background()
	hub.Add(namespace, conn, func(msg message.Message, from remote) {
		if err := s.Receive(ctx, msg, ref(from)); err != nil {
			slog.Warn("receive from peer failed", "namespace", from, "err", err)
		}
	})
}

func ref(v remote) *remote { return &v }
