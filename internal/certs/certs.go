// Package certs keeps the self-signed certificate that lets the relay serve https://localhost.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Validity is how long a generated certificate lasts.
const Validity = 365 * 24 * time.Hour

var errNoCertificate = errors.New("no certificate in key pair")

// Store reads and writes the localhost key pair in one directory.
type Store struct {
	dir      string
	certFile string
	keyFile  string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:      dir,
		certFile: filepath.Join(dir, "relay-localhost.crt"),
		keyFile:  filepath.Join(dir, "relay-localhost.key"),
	}
}

// CertFile is the PEM certificate path, e.g. for importing into a browser trust store.
func (s *Store) CertFile() string {
	return s.certFile
}

// Certificate returns the stored key pair, regenerating it when it is missing, unreadable,
// expired or not valid for localhost.
func (s *Store) Certificate() (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err == nil {
		if verr := verify(cert, time.Now()); verr == nil {
			return cert, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		// unreadable pair, replace it
		_ = os.Remove(s.certFile)
		_ = os.Remove(s.keyFile)
	}
	return s.generate()
}

// ServerConfig returns a TLS config serving the stored certificate.
func (s *Store) ServerConfig() (*tls.Config, error) {
	cert, err := s.Certificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientConfig returns a TLS config that trusts the stored certificate, so local clients can
// dial wss://localhost without disabling verification.
func (s *Store) ClientConfig() (*tls.Config, error) {
	data, err := os.ReadFile(s.certFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.certFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%s holds no PEM certificate", s.certFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (s *Store) generate() (tls.Certificate, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return tls.Certificate{}, fmt.Errorf("creating certificate directory: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generating serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"browser2excel relay"}, CommonName: "localhost"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("creating certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("encoding key: %w", err)
	}

	if err := writePEM(s.certFile, "CERTIFICATE", der); err != nil {
		return tls.Certificate{}, err
	}
	if err := writePEM(s.keyFile, "EC PRIVATE KEY", keyDER); err != nil {
		return tls.Certificate{}, err
	}
	return tls.LoadX509KeyPair(s.certFile, s.keyFile)
}

func writePEM(path, kind string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: kind, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func verify(cert tls.Certificate, now time.Time) error {
	if len(cert.Certificate) == 0 {
		return errNoCertificate
	}
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("parsing certificate: %w", err)
	}
	if now.Before(parsed.NotBefore) || now.After(parsed.NotAfter) {
		return fmt.Errorf("certificate valid only between %s and %s", parsed.NotBefore, parsed.NotAfter)
	}
	return parsed.VerifyHostname("localhost")
}
