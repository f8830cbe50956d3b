package redis

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultPrefix = "filebot:search:"

// Config holds the Redis cache module configuration.
type Config struct {
	// Addr is a single server address. Addrs lists cluster or sentinel
	// nodes; both may be set and are merged.
	Addr  string   `yaml:"addr"`
	Addrs []string `yaml:"addrs"`

	// MasterName selects sentinel mode.
	MasterName string `yaml:"master_name"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix is prepended to every key. Defaults to "filebot:search:".
	Prefix string `yaml:"prefix"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig controls TLS for Redis connections. TLS is off when every
// field is empty.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

func (c *Config) defaults() {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// addrs returns the trimmed, non-empty server addresses.
func (c *Config) addrs() []string {
	out := make([]string, 0, len(c.Addrs)+1)
	for _, addr := range c.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if addr := strings.TrimSpace(c.Addr); addr != "" {
		out = append(out, addr)
	}
	return out
}

func (c *Config) validate() error {
	var errs []error
	if len(c.addrs()) == 0 {
		errs = append(errs, errors.New("redis: addr or addrs is required"))
	}
	if c.DB < 0 {
		errs = append(errs, fmt.Errorf("redis: db must be non-negative, got %d", c.DB))
	}
	if c.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("redis: pool_size must be non-negative, got %d", c.PoolSize))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("redis: tls.cert_file and tls.key_file must be set together"))
	}
	return errors.Join(errs...)
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.InsecureSkipVerify && cfg.ServerName == "" {
		return nil, nil
	}
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in
		ServerName:         cfg.ServerName,
	}
	if cfg.CAFile != "" {
		pemData, err := os.ReadFile(filepath.Clean(cfg.CAFile))
		if err != nil {
			return nil, fmt.Errorf("redis: read tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("redis: tls ca is invalid")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(filepath.Clean(cfg.CertFile), filepath.Clean(cfg.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("redis: load tls certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
