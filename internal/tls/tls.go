// Package tls builds the *tls.Config of the API server from the
// [server.tls] section: explicit cert/key files, or a directory that may
// hold a generated self-signed pair.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/pausr/internal/config"
)

const (
	certName = "pausr.crt"
	keyName  = "pausr.key"
)

func minVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2", "tls1.2", "TLS1.2":
		return tls.VersionTLS12, nil
	case "1.3", "tls1.3", "TLS1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unsupported tls min_version %q", v)
}

// Setup returns nil when TLS is disabled.
func Setup(c config.TLSConfig) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	minVer, err := minVersion(c.MinVersion)
	if err != nil {
		return nil, err
	}
	certPath, keyPath := c.CertFile, c.KeyFile
	if certPath == "" || keyPath == "" {
		if c.Dir == "" {
			return nil, errors.New("tls enabled without cert_file/key_file or dir")
		}
		certPath, keyPath = filepath.Join(c.Dir, certName), filepath.Join(c.Dir, keyName)
		if c.AutoGenerate && !exists(certPath, keyPath) {
			if err := GenerateSelfSigned(CertOptions{
				CommonName: c.CommonName,
				DNSNames:   c.DNSNames,
				ValidDays:  c.ValidDays,
				CertPath:   certPath,
				KeyPath:    keyPath,
			}); err != nil {
				return nil, fmt.Errorf("generate certificate: %w", err)
			}
		}
	}
	// fail at startup rather than on the first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		MinVersion:     minVer,
		GetCertificate: reloading(certPath, keyPath),
	}, nil
}

// reloading re-reads the pair on every handshake so rotated files are
// picked up without a restart.
func reloading(certPath, keyPath string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		pair, err := tls.LoadX509KeyPair(filepath.Clean(certPath), filepath.Clean(keyPath))
		if err != nil {
			return nil, err
		}
		return &pair, nil
	}
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
