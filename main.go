// Command airdrop-bridge runs the mDNS responder, HTTPS AirDrop API, and
// back-end peer channel that together let a non-Apple device receive
// AirDrop transfers.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dotside-studios/airdrop-bridge/airdrop"
	"github.com/dotside-studios/airdrop-bridge/awdl"
	"github.com/dotside-studios/airdrop-bridge/bridgeconfig"
	"github.com/dotside-studios/airdrop-bridge/bridgetls"
	"github.com/dotside-studios/airdrop-bridge/buildinfo"
	"github.com/dotside-studios/airdrop-bridge/mdns"
	"github.com/dotside-studios/airdrop-bridge/peer"
	"github.com/gorilla/websocket"
)

var mainLogger = log.New(os.Stderr, "[bridge] ", log.LstdFlags)

// exitCode values match spec §6's "0 success; non-zero on fatal
// misconfiguration (no AWDL interface, bind failure, missing certificate)".
const (
	exitOK          = 0
	exitNoAWDL      = 1
	exitCertFailure = 2
	exitBindFailure = 3
)

func main() {
	cfg, err := bridgeconfig.Parse(os.Args[1:])
	if err != nil {
		mainLogger.Fatalf("configuration error: %v", err)
	}

	mainLogger.Printf("%s starting", buildinfo.FullVersion())

	ifaces, err := selectInterfaces(cfg)
	if err != nil {
		mainLogger.Printf("interface selection failed: %v", err)
		os.Exit(exitNoAWDL)
	}

	hook := awdl.NewPlatformHook()
	if err := hook.StartAWDL(); err != nil {
		mainLogger.Printf("platform AWDL hook failed to start: %v", err)
	}
	defer hook.StopAWDL()

	certManager := bridgetls.NewManager(cfg.CertDir)
	cert, err := certManager.EnsureCertificate()
	if err != nil {
		mainLogger.Printf("certificate setup failed: %v", err)
		os.Exit(exitCertFailure)
	}

	responder, err := mdns.NewResponder(ifaces)
	if err != nil {
		mainLogger.Printf("mDNS responder failed to start: %v", err)
		os.Exit(exitBindFailure)
	}
	defer responder.Close()

	registry := airdrop.NewRegistry(responder, ifaces, cfg.ListenPort)
	defer registry.Close()

	handler := &airdrop.Handler{
		Registry:        registry,
		UploadRoot:      cfg.UploadPath,
		UploadURLPrefix: cfg.UploadURLPrefix,
		AskTimeout:      0, // the peer decides; spec applies no timeout at the core level
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle(cfg.UploadURLPrefix, http.StripPrefix(cfg.UploadURLPrefix, http.FileServer(http.Dir(cfg.UploadPath))))
	mux.HandleFunc("/connect", newConnectHandler(registry))

	srv := &http.Server{
		Addr:      fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:   mux,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}

	serveErr := make(chan error, 1)
	go func() {
		mainLogger.Printf("listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServeTLS("", "")
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			mainLogger.Printf("HTTP server error: %v", err)
			os.Exit(exitBindFailure)
		}
	case <-sigCh:
		mainLogger.Printf("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		mainLogger.Printf("shutdown error: %v", err)
	}

	os.Exit(exitOK)
}

func selectInterfaces(cfg *bridgeconfig.Config) ([]net.Interface, error) {
	ifaces, err := awdl.SelectInterfaces()
	if err != nil {
		return nil, err
	}
	if cfg.AWDLOnly && !awdl.HasAWDL(ifaces) {
		return nil, fmt.Errorf("awdl-only set but %s is not present among selected interfaces", awdl.InterfaceName)
	}
	return ifaces, nil
}

// newConnectHandler upgrades /connect to a websocket and registers the
// resulting peer.Channel under the id its query string names (or a
// freshly generated one if absent), matching the teacher's
// handleWebSocket upgrade-then-dispatch idiom.
func newConnectHandler(registry *airdrop.Registry) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			mainLogger.Printf("connect: upgrade: %v", err)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			id = airdrop.NewReceiverID()
		}

		var ch *peer.Channel
		ch = peer.NewChannel(id, conn, func() { registry.UnregisterPeer(ch.ID()) })
		registry.RegisterPeer(ch)
		mainLogger.Printf("connect: peer %s registered", id)
	}
}
