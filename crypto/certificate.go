package crypto

import (
	"crypto/tls"
	"crypto/x509"
	_ "embed"
	"encoding/pem"
	"errors"
	"os"

	"github.com/bluemods/deceive-proxy/constants"
	"golang.org/x/crypto/pkcs12"
)

var (
	//go:embed certs/proxy.crt
	embeddedCertPEM []byte
	//go:embed certs/proxy.key
	embeddedKeyPEM []byte
)

// Returns the certificate the game client is presented with.
// The client accepts any certificate for the chat host, so a bundled one is enough.
func EmbeddedCertificate() (tls.Certificate, error) {
	return tls.X509KeyPair(embeddedCertPEM, embeddedKeyPEM)
}

// Returns a pool holding only the bundled certificate.
// Useful for dialing a local listener that presents it.
func EmbeddedCertPool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(embeddedCertPEM) {
		return nil, errors.New("no certificates in embedded PEM")
	}
	return pool, nil
}

// Loads a .p12 certificate, the password is read from p12PasswordFile.
func LoadP12(p12File string, p12PasswordFile string) (*tls.Certificate, error) {
	p12Bytes, err := os.ReadFile(p12File)
	if err != nil {
		return nil, err
	}
	p12Password, err := os.ReadFile(p12PasswordFile)
	if err != nil {
		return nil, err
	}
	// This way supports more p12 certs, as not all of them
	// will have exactly two safe bags in the PFX PDU
	blocks, err := pkcs12.ToPEM(p12Bytes, string(trimNewline(p12Password)))
	// Explicitly zero the password array
	for i := range p12Password {
		p12Password[i] = 0
	}
	if err != nil {
		return nil, err
	}

	var pemData []byte
	for _, block := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(block)...)
	}
	cert, err := tls.X509KeyPair(pemData, pemData)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// Picks the certificate for the client-facing listener:
// a .p12 file, a PEM pair, or the bundled one when neither is configured.
func LoadServerCertificate(certFile, keyFile, p12File, p12PasswordFile string) (tls.Certificate, error) {
	if p12File != "" && p12PasswordFile != "" {
		cert, err := LoadP12(p12File, p12PasswordFile)
		if err != nil {
			return tls.Certificate{}, err
		}
		return *cert, nil
	}
	if certFile != "" && keyFile != "" {
		return tls.LoadX509KeyPair(certFile, keyFile)
	}
	return EmbeddedCertificate()
}

// TLS config for the listener the game client connects to.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   constants.SERVER_TLS_VERSION,
	}
}

// TLS config for dialing the real chat server, with standard certificate validation.
func ChatTLSConfig(host string) *tls.Config {
	return &tls.Config{
		ServerName: host,
		MinVersion: constants.SERVER_TLS_VERSION,
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
