// Package testutil provides helpers shared by tests that need a QUIC
// endpoint.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-lab/go/rtx"

	"github.com/buoylink/buoylink/pkg/buoy1/spec"
)

// Cert is a self-signed certificate valid for localhost and 127.0.0.1.
type Cert struct {
	// CAFile is a PEM file holding the certificate, usable as a client CA.
	CAFile string
	// KeyFile is a PEM file holding the private key.
	KeyFile string
	// CertFile is the same as CAFile, named for server configuration.
	CertFile string
	// DERFile holds the certificate in DER format.
	DERFile string

	TLS *tls.Config
}

// NewCert generates a certificate in t.TempDir().
func NewCert(t *testing.T) *Cert {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	rtx.Must(err, "cannot generate key")

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	rtx.Must(err, "cannot create certificate")
	keyDER, err := x509.MarshalECPrivateKey(key)
	rtx.Must(err, "cannot marshal key")

	dir := t.TempDir()
	c := &Cert{
		CAFile:  filepath.Join(dir, "cert.pem"),
		KeyFile: filepath.Join(dir, "key.pem"),
		DERFile: filepath.Join(dir, "cert.der"),
	}
	c.CertFile = c.CAFile
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	rtx.Must(os.WriteFile(c.CAFile, certPEM, 0o600), "cannot write cert")
	rtx.Must(os.WriteFile(c.KeyFile, keyPEM, 0o600), "cannot write key")
	rtx.Must(os.WriteFile(c.DERFile, der, 0o600), "cannot write der")

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	rtx.Must(err, "cannot load key pair")
	c.TLS = &tls.Config{
		Certificates: []tls.Certificate{pair},
		NextProtos:   spec.NextProtos,
		MinVersion:   tls.VersionTLS13,
	}
	return c
}
