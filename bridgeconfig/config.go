// Package bridgeconfig parses and validates the bridge's command-line
// configuration, grounded on the teacher main.go's flag.XxxVar usage — no
// config-file library is pulled in for a small daemon's handful of knobs.
package bridgeconfig

import (
	"flag"
	"fmt"
)

const (
	DefaultListenPort      = 8770
	DefaultUploadPath      = "/var/lib/airdrop-bridge/uploads"
	DefaultCertDir         = "/var/lib/airdrop-bridge/tls"
	DefaultUploadURLPrefix = "/uploads/"
)

// Config holds the bridge's validated runtime configuration (spec §6's
// "Configuration" external interface: listen_port and upload_path are
// required; the rest are operational knobs the core doesn't name but a
// real process wrapping it needs).
type Config struct {
	// ListenPort is the HTTPS bind port (spec §6's listen_port).
	ListenPort uint16

	// UploadPath is the directory under which completed extractions are
	// created and exposed (spec §6's upload_path).
	UploadPath string

	// UploadURLPrefix is the HTTP path prefix the static file server
	// exposes UploadPath at.
	UploadURLPrefix string

	// CertDir is where the self-signed certificate and key are loaded
	// from or generated into.
	CertDir string

	// AWDLOnly makes startup fail if awdl0 is not among the selected
	// interfaces, rather than running on the other multicast interfaces
	// alone. When awdl0 is present, the other eligible interfaces are
	// still used alongside it.
	AWDLOnly bool
}

// Parse builds a Config from args (typically os.Args[1:]), applying
// defaults and validating the result.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("airdrop-bridge", flag.ContinueOnError)

	cfg := &Config{}
	var listenPort int
	fs.IntVar(&listenPort, "port", DefaultListenPort, "HTTPS port to listen on")
	fs.StringVar(&cfg.UploadPath, "upload-path", DefaultUploadPath, "directory completed uploads are extracted under")
	fs.StringVar(&cfg.UploadURLPrefix, "upload-url-prefix", DefaultUploadURLPrefix, "HTTP path prefix the static file server exposes uploads at")
	fs.StringVar(&cfg.CertDir, "cert-dir", DefaultCertDir, "directory the self-signed TLS certificate and key are stored in")
	fs.BoolVar(&cfg.AWDLOnly, "awdl-only", false, "fail startup if the awdl0 interface is not present, instead of falling back to other multicast interfaces")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if listenPort <= 0 || listenPort > 65535 {
		return nil, fmt.Errorf("bridgeconfig: port %d out of range", listenPort)
	}
	cfg.ListenPort = uint16(listenPort)

	if cfg.UploadPath == "" {
		return nil, fmt.Errorf("bridgeconfig: upload-path must not be empty")
	}

	return cfg, nil
}
