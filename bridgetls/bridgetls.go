// Package bridgetls loads or generates the self-signed certificate the
// HTTPS API listens with (spec §6's "certificate is an external
// collaborator"). Grounded on the teacher's tls.Manager (ensure-or-generate
// against a cache directory, per-package logger) but replacing its
// truststore-backed CA/leaf issuance with syncthing's stdlib-only
// self-signed certificate generation — this bridge needs one fixed-identity
// leaf cert, not a locally-trusted CA (see DESIGN.md).
package bridgetls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

var logger = log.New(os.Stderr, "[bridgetls] ", log.LstdFlags)

const (
	// CommonName and SANName are fixed per spec §6 — AirDrop senders
	// connect to the advertised hostname, not an operator-chosen name.
	CommonName = "airdrop.local"
	SANName    = "airdrop.local"

	rsaBits  = 4096
	validFor = 365 * 24 * time.Hour
)

// Manager ensures a certificate/key pair exists under a directory,
// generating one on first use and reusing it on subsequent starts.
type Manager struct {
	dir      string
	certFile string
	keyFile  string
}

// NewManager creates a Manager rooted at dir (created if absent).
func NewManager(dir string) *Manager {
	return &Manager{
		dir:      dir,
		certFile: filepath.Join(dir, "server.crt"),
		keyFile:  filepath.Join(dir, "server.key"),
	}
}

// EnsureCertificate loads the cached certificate/key pair, generating a
// fresh one if either file is missing.
func (m *Manager) EnsureCertificate() (tls.Certificate, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return tls.Certificate{}, fmt.Errorf("bridgetls: create cert directory: %w", err)
	}

	if m.exists() {
		logger.Printf("using existing certificate at %s", m.certFile)
		return tls.LoadX509KeyPair(m.certFile, m.keyFile)
	}

	logger.Printf("generating self-signed certificate for %s", CommonName)
	return m.generate()
}

func (m *Manager) exists() bool {
	_, certErr := os.Stat(m.certFile)
	_, keyErr := os.Stat(m.keyFile)
	return certErr == nil && keyErr == nil
}

// generate creates a fresh RSA-4096 self-signed certificate for
// CommonName/SANName, valid for one year, restricted to serverAuth (spec
// §6: CN=airdrop.local, SAN=airdrop.local, EKU=serverAuth, 4096-bit RSA,
// 1-year validity).
func (m *Manager) generate() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("bridgetls: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("bridgetls: generate serial: %w", err)
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: CommonName},
		DNSNames:              []string{SANName},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("bridgetls: create certificate: %w", err)
	}

	if err := writePEM(m.certFile, "CERTIFICATE", der, 0o644); err != nil {
		return tls.Certificate{}, err
	}
	if err := writePEM(m.keyFile, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(priv), 0o600); err != nil {
		return tls.Certificate{}, err
	}

	return tls.LoadX509KeyPair(m.certFile, m.keyFile)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("bridgetls: open %s: %w", path, err)
	}
	defer f.Close()

	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("bridgetls: write %s: %w", path, err)
	}
	return nil
}

// CertFile returns the path the certificate is (or will be) stored at.
func (m *Manager) CertFile() string { return m.certFile }

// KeyFile returns the path the key is (or will be) stored at.
func (m *Manager) KeyFile() string { return m.keyFile }
