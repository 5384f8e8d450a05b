// Package tls provides the TLS material for the gateway's HTTPS listener:
// loading an operator-supplied PEM pair, or generating a self-signed one.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	// ServerCertFile is the filename for the generated server certificate.
	ServerCertFile = "cert.pem"
	// ServerKeyFile is the filename for the generated server private key.
	ServerKeyFile = "key.pem"

	// certValidityDays is the validity period for generated certificates.
	certValidityDays = 365
)

// EnsureCertificates returns usable certificate and key paths. Operator-
// supplied paths are validated and used directly; otherwise a self-signed
// pair is generated under certsDir (reusing an existing, still-valid one).
func EnsureCertificates(certPath, keyPath, certsDir string) (cert, key string, err error) {
	if certPath != "" && keyPath != "" {
		if _, err := os.Stat(certPath); err != nil {
			return "", "", errors.Wrapf(err, "certificate file %s", certPath)
		}
		if _, err := os.Stat(keyPath); err != nil {
			return "", "", errors.Wrapf(err, "key file %s", keyPath)
		}
		return certPath, keyPath, nil
	}

	cert = filepath.Join(certsDir, ServerCertFile)
	key = filepath.Join(certsDir, ServerKeyFile)
	if certValid(cert, key) {
		return cert, key, nil
	}

	if err := generateSelfSigned(cert, key); err != nil {
		return "", "", errors.Wrap(err, "unable to generate self-signed certificate")
	}
	return cert, key, nil
}

// certValid reports whether both files exist and the certificate does not
// expire within 30 days.
func certValid(certPath, keyPath string) bool {
	if _, err := os.Stat(keyPath); err != nil {
		return false
	}
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return false
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}
	return time.Until(cert.NotAfter) >= 30*24*time.Hour
}

// generateSelfSigned writes a fresh self-signed server certificate and key.
func generateSelfSigned(certPath, keyPath string) error {
	if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
		return err
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"llamagate"},
			CommonName:   "llamagate",
		},
		NotBefore:             time.Now().Add(-1 * time.Hour), // allow for clock skew
		NotAfter:              time.Now().AddDate(0, 0, certValidityDays),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return err
	}

	certOut, err := os.OpenFile(certPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		return err
	}

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return err
	}
	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer keyOut.Close()
	return pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}
