// Package ca implements the private Certificate Authority: an in-process
// X.509 issuer that self-generates a long-lived root on first boot and
// signs short-lived leaf certificates from CSRs, enforcing the binding
// between the certificate subject and the authenticated user id.
package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
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

	"github.com/jmhodges/clock"

	"github.com/nsl-router/nsl-router/internal/apperrors"
)

const (
	rootKeyBits   = 2048
	rootValidity  = 10 * 365 * 24 * time.Hour
	rootSubjectCN = "NSL Router Root CA"
	rootOrg       = "NSL Router"
	rootOU        = "Control Plane"
)

// CA is the private Certificate Authority. Its root material is written
// once during bootstrap, before the server accepts requests, and is
// read-only for the remaining lifetime of the process.
type CA struct {
	mu sync.RWMutex

	cert    *x509.Certificate
	key     *rsa.PrivateKey
	certPEM []byte

	clock clock.Clock
}

// New builds a CA with no root material loaded yet; call Bootstrap before
// issuing.
func New(clk clock.Clock) *CA {
	return &CA{clock: clk}
}

// Bootstrap loads the CA's root certificate and key from certPath/keyPath.
// If either file is absent, a fresh 2048-bit RSA root is generated and
// persisted (cert mode 0644, key mode 0600), creating the containing
// directory if needed. A parse failure on an existing pair is fatal.
func (c *CA) Bootstrap(certPath, keyPath string) error {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)

	if os.IsNotExist(certErr) || os.IsNotExist(keyErr) {
		return c.generateRoot(certPath, keyPath)
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return fmt.Errorf("reading CA certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("reading CA key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return fmt.Errorf("CA certificate file %s is not valid PEM", certPath)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return fmt.Errorf("parsing CA certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return fmt.Errorf("CA key file %s is not valid PEM", keyPath)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return fmt.Errorf("parsing CA key: %w", err)
	}

	c.mu.Lock()
	c.cert = cert
	c.key = key
	c.certPEM = certPEM
	c.mu.Unlock()
	return nil
}

func (c *CA) generateRoot(certPath, keyPath string) error {
	key, err := rsa.GenerateKey(rand.Reader, rootKeyBits)
	if err != nil {
		return fmt.Errorf("generating CA key: %w", err)
	}

	skid, err := subjectKeyID(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("computing subject key id: %w", err)
	}

	now := c.clock.Now().UTC()
	subject := pkix.Name{
		CommonName:         rootSubjectCN,
		Organization:       []string{rootOrg},
		OrganizationalUnit: []string{rootOU},
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               subject,
		Issuer:                subject,
		NotBefore:             now,
		NotAfter:              now.Add(rootValidity),
		BasicConstraintsValid: true,
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		SubjectKeyId:          skid,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("creating root certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("parsing freshly generated root certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	if err := os.MkdirAll(filepath.Dir(certPath), 0o755); err != nil {
		return fmt.Errorf("creating CA certificate directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o755); err != nil {
		return fmt.Errorf("creating CA key directory: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("writing CA certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("writing CA key: %w", err)
	}

	c.mu.Lock()
	c.cert = cert
	c.key = key
	c.certPEM = certPEM
	c.mu.Unlock()
	return nil
}

// GetCACertificate returns the cached root certificate PEM bytes.
func (c *CA) GetCACertificate() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.certPEM == nil {
		return nil, apperrors.UnavailableError("certificate authority is not initialized")
	}
	return c.certPEM, nil
}

// SignResult is the outcome of a successful leaf signing.
type SignResult struct {
	CertificatePEM string
	NotAfter       time.Time
}

// SignCSR signs a PEM-encoded CSR for the authenticated userID, binding
// the leaf's Common Name to userID and folding serverDomain/publicIp into
// the SAN list. validity is the leaf's lifetime (CERT_VALIDITY_HOURS).
func (c *CA) SignCSR(csrPEM []byte, userID string, serverDomain string, publicIP string, validity time.Duration) (SignResult, error) {
	c.mu.RLock()
	caCert, caKey := c.cert, c.key
	c.mu.RUnlock()
	if caCert == nil || caKey == nil {
		return SignResult{}, apperrors.UnavailableError("certificate authority is not initialized")
	}

	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return SignResult{}, apperrors.ValidationError("could not decode CSR PEM")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return SignResult{}, apperrors.ValidationError("could not parse CSR: %s", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return SignResult{}, apperrors.ValidationError("CSR signature does not verify: %s", err)
	}

	cn := csr.Subject.CommonName
	if cn != userID {
		return SignResult{}, apperrors.ValidationError("CSR common name %q does not match authenticated user %q", cn, userID)
	}

	serial, err := randomSerial()
	if err != nil {
		return SignResult{}, apperrors.InfrastructureError("generating serial: %s", err)
	}

	skid, err := subjectKeyID(csr.PublicKey)
	if err != nil {
		return SignResult{}, apperrors.InfrastructureError("computing subject key id: %s", err)
	}
	akid, err := subjectKeyID(&caKey.PublicKey)
	if err != nil {
		return SignResult{}, apperrors.InfrastructureError("computing authority key id: %s", err)
	}

	now := c.clock.Now().UTC()
	notAfter := now.Add(validity)

	var dnsNames []string
	if serverDomain != "" {
		dnsNames = append(dnsNames, "*."+serverDomain)
	}
	dnsNames = append(dnsNames, "*.nip.io")
	var ipAddresses []net.IP
	if publicIP != "" {
		if ip := net.ParseIP(publicIP); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		}
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               csr.Subject,
		Issuer:                caCert.Subject,
		NotBefore:             now,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  false,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		SubjectKeyId:          skid,
		AuthorityKeyId:        akid,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, csr.PublicKey, caKey)
	if err != nil {
		return SignResult{}, apperrors.InfrastructureError("signing leaf certificate: %s", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return SignResult{CertificatePEM: string(certPEM), NotAfter: notAfter}, nil
}

// randomSerial builds a positive serial number: a zero byte followed by
// 15 random bytes, so the DER-encoded integer's sign bit is never set.
func randomSerial() (*big.Int, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf[1:]); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}

// subjectKeyID derives a key identifier from the SHA-1 hash of the
// public key's DER encoding, the conventional method 1 construction from
// RFC 5280 section 4.2.1.2.
func subjectKeyID(pub interface{}) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(der)
	return sum[:], nil
}
