// Package tlsca generates and caches the root CA and per-host leaf
// certificates the outgoing MITM proxy presents to clients during a TLS
// CONNECT intercept. Leaves are signed on demand and cached so repeat
// connections to the same host skip key generation.
package tlsca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	caCertFile = "ca-cert.pem"
	caKeyFile  = "ca-key.pem"
)

// Manager owns the root CA key pair and a bounded cache of per-host leaf
// certificates signed by it.
type Manager struct {
	caCert *x509.Certificate
	caKey  *rsa.PrivateKey
	caTLS  tls.Certificate

	leafValidity time.Duration
	cacheSize    int

	mu    sync.Mutex
	cache map[string]*tls.Certificate
	order []string // LRU-ish eviction order, oldest first
}

// Config controls CA generation and leaf cache sizing.
type Config struct {
	// Dir is where the CA key pair is persisted across restarts.
	Dir string
	// KeySize is the RSA modulus size in bits for a newly generated CA key.
	// Leaf keys are always 2048-bit.
	KeySize int
	// CAValidity is how long a freshly generated CA certificate is valid for.
	CAValidity time.Duration
	// LeafValidity is how long each signed leaf certificate is valid for.
	LeafValidity time.Duration
	// LeafCacheSize bounds the number of cached leaf certificates.
	LeafCacheSize int
}

// NewManager loads an existing CA from cfg.Dir, or generates and persists a
// new one if none is found.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.KeySize <= 0 {
		cfg.KeySize = 2048
	}
	if cfg.CAValidity <= 0 {
		cfg.CAValidity = 10 * 365 * 24 * time.Hour
	}
	if cfg.LeafValidity <= 0 {
		cfg.LeafValidity = 90 * 24 * time.Hour
	}
	if cfg.LeafCacheSize <= 0 {
		cfg.LeafCacheSize = 256
	}

	m := &Manager{
		leafValidity: cfg.LeafValidity,
		cacheSize:    cfg.LeafCacheSize,
		cache:        make(map[string]*tls.Certificate),
	}

	if cfg.Dir != "" {
		if cert, key, err := loadCA(cfg.Dir); err == nil {
			m.caCert = cert
			m.caKey = key
			m.caTLS = tls.Certificate{
				Certificate: [][]byte{cert.Raw},
				PrivateKey:  key,
				Leaf:        cert,
			}
			return m, nil
		}
	}

	cert, key, err := generateCA(cfg.KeySize, cfg.CAValidity)
	if err != nil {
		return nil, fmt.Errorf("tlsca: generate CA: %w", err)
	}
	m.caCert = cert
	m.caKey = key
	m.caTLS = tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}

	if cfg.Dir != "" {
		if err := saveCA(cfg.Dir, cert, key); err != nil {
			return nil, fmt.Errorf("tlsca: persist CA: %w", err)
		}
	}

	return m, nil
}

// CACertPEM returns the root CA certificate, PEM-encoded, for clients to
// trust out of band.
func (m *Manager) CACertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: m.caCert.Raw})
}

// LeafFor returns a signed certificate for host, generating and caching one
// if it isn't already cached. host may be a DNS name or a literal IP.
func (m *Manager) LeafFor(host string) (*tls.Certificate, error) {
	m.mu.Lock()
	if cert, ok := m.cache[host]; ok {
		m.mu.Unlock()
		return cert, nil
	}
	m.mu.Unlock()

	cert, err := m.signLeaf(host)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[host] = cert
	m.order = append(m.order, host)
	if len(m.order) > m.cacheSize {
		evict := m.order[0]
		m.order = m.order[1:]
		delete(m.cache, evict)
	}
	m.mu.Unlock()

	return cert, nil
}

func (m *Manager) signLeaf(host string) (*tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("tlsca: generate leaf key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host, Organization: []string{"wiretap intercepting proxy"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(m.leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, m.caCert, &key.PublicKey, m.caKey)
	if err != nil {
		return nil, fmt.Errorf("tlsca: sign leaf for %s: %w", host, err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("tlsca: parse signed leaf: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der, m.caCert.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

func generateCA(keySize int, validity time.Duration) (*x509.Certificate, *rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, nil, err
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "wiretap intercepting proxy CA", Organization: []string{"wiretap"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}

	return cert, key, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	return rand.Int(rand.Reader, limit)
}

func loadCA(dir string) (*x509.Certificate, *rsa.PrivateKey, error) {
	certPEM, err := os.ReadFile(filepath.Join(dir, caCertFile))
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, caKeyFile))
	if err != nil {
		return nil, nil, err
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("tlsca: invalid CA cert PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, err
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("tlsca: invalid CA key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, err
	}

	if err := x509ValidateExpiry(cert); err != nil {
		return nil, nil, err
	}

	return cert, key, nil
}

func x509ValidateExpiry(cert *x509.Certificate) error {
	if time.Now().After(cert.NotAfter) {
		return fmt.Errorf("tlsca: persisted CA expired on %s", cert.NotAfter)
	}
	return nil
}

func saveCA(dir string, cert *x509.Certificate, key *rsa.PrivateKey) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	if err := os.WriteFile(filepath.Join(dir, caCertFile), certPEM, 0o644); err != nil {
		return err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return os.WriteFile(filepath.Join(dir, caKeyFile), keyPEM, 0o600)
}
