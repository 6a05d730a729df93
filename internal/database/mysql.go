package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

const (
	defaultMySQLPort = 3306
	tlsConfigName    = "catalog-importer-ca"
)

// MySQLConfig describes the MySQL destination.
type MySQLConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	TLSCAFile    string
	Table        string
	MaxOpenConns int
	// Connector overrides how the handle is opened; nil uses sqlx.
	Connector Connector
}

// NewMySQLProvider connects to MySQL and verifies the connection.
func NewMySQLProvider(ctx context.Context, cfg MySQLConfig) (*SQLProvider, error) {
	dsn, err := MySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := connect(ctx, cfg.Connector, "mysql", dsn, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	p, err := NewSQLProvider(db, DialectMySQL, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// MySQLDSN renders the driver DSN. A CA file registers a named TLS config
// that verifies the server against it.
func MySQLDSN(cfg MySQLConfig) (string, error) {
	if cfg.Host == "" {
		return "", errors.New("mysql host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = defaultMySQLPort
	}
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Name
	mc.ParseTime = true
	if cfg.TLSCAFile != "" {
		if err := registerCA(cfg.Host, cfg.TLSCAFile); err != nil {
			return "", err
		}
		mc.TLSConfig = tlsConfigName
	}
	return mc.FormatDSN(), nil
}

func registerCA(host, path string) error {
	pem, err := os.ReadFile(path) // #nosec G304 -- operator supplied CA path.
	if err != nil {
		return fmt.Errorf("read mysql ca %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("mysql ca %s contains no certificates", path)
	}
	err = mysql.RegisterTLSConfig(tlsConfigName, &tls.Config{
		RootCAs:    pool,
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("register mysql tls config: %w", err)
	}
	return nil
}
