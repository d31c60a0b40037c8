package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

// TLSFiles holds TLS certificate paths.
type TLSFiles struct {
	CertFile string
	KeyFile  string
}

// LoadTLSFiles reads SENTIENT_TLS_CERT and SENTIENT_TLS_KEY.
func LoadTLSFiles() TLSFiles {
	return TLSFiles{
		CertFile: os.Getenv("SENTIENT_TLS_CERT"),
		KeyFile:  os.Getenv("SENTIENT_TLS_KEY"),
	}
}

// Enabled returns true if both files are configured.
func (f TLSFiles) Enabled() bool {
	return f.CertFile != "" && f.KeyFile != ""
}

// Config loads the key pair. It returns nil, nil when TLS is not enabled.
func (f TLSFiles) Config() (*tls.Config, error) {
	if !f.Enabled() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
