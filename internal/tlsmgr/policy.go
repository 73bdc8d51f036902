// Package tlsmgr builds and caches per-host *tls.Config values: on-demand
// self-signed certificates, operator-supplied static certificates, and
// (additively) ACME-issued certificates, dispatched by SNI.
package tlsmgr

import (
	"crypto/rand"
	"crypto/rsa"
	cryptotls "crypto/tls"
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

// selfSignedKeyBits is fixed at 4096 per policy; it is not configurable.
const selfSignedKeyBits = 4096

// selfSignedValidity is the certificate lifetime from issuance.
const selfSignedValidity = 30 * 24 * time.Hour

// selfSignedBackdate compensates for client/server clock skew.
const selfSignedBackdate = 24 * time.Hour

var errNoHosts = errors.New("tlsmgr: self-signed certificate requires at least one host")

// loadOrIssueSelfSigned implements spec.md's automatic certificate policy:
// reuse an unexpired certificate at certPath, otherwise generate (or reuse
// an existing private key and) issue a fresh one, persisting both.
func loadOrIssueSelfSigned(hosts []string, certPath, keyPath string) (cryptotls.Certificate, error) {
	if len(hosts) == 0 {
		return cryptotls.Certificate{}, errNoHosts
	}

	if cert, ok := tryLoadValid(certPath, keyPath); ok {
		return cert, nil
	}

	key, err := loadOrGenerateKey(keyPath)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("tlsmgr: private key: %w", err)
	}

	now := time.Now()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("tlsmgr: serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: hosts[0]},
		NotBefore:             now.Add(-selfSignedBackdate),
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		SignatureAlgorithm:    x509.SHA256WithRSA,
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("tlsmgr: create certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("tlsmgr: cert dir: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("tlsmgr: write cert: %w", err)
	}

	return cryptotls.X509KeyPair(certPEM, pem.EncodeToMemory(keyPEMBlock(key)))
}

// tryLoadValid loads an existing cert/key pair and reports whether it is
// still within its validity window.
func tryLoadValid(certPath, keyPath string) (cryptotls.Certificate, bool) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return cryptotls.Certificate{}, false
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return cryptotls.Certificate{}, false
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return cryptotls.Certificate{}, false
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil || !leaf.NotAfter.After(time.Now()) {
		return cryptotls.Certificate{}, false
	}

	cert, err := cryptotls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return cryptotls.Certificate{}, false
	}
	return cert, true
}

// loadOrGenerateKey reuses an existing unencrypted PKCS#1 key file if
// present, otherwise generates and persists a new one.
func loadOrGenerateKey(keyPath string) (*rsa.PrivateKey, error) {
	if data, err := os.ReadFile(keyPath); err == nil {
		if block, _ := pem.Decode(data); block != nil {
			if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
				return key, nil
			}
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, selfSignedKeyBits)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(keyPEMBlock(key)), 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	return key, nil
}

func keyPEMBlock(key *rsa.PrivateKey) *pem.Block {
	return &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
}
