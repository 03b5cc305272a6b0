package grpc_interface

import (
	"crypto/tls"
	"fmt"
	"net"
)

type Config struct {
	Port uint32
	// TLSCert and TLSKey are PEM file paths. TLS is off when both are empty.
	TLSCert string
	TLSKey  string
}

func (c Config) Validate() error {
	lis, err := net.Listen("tcp", c.address())
	if err != nil {
		return fmt.Errorf("invalid port: %s", err)
	}
	// nolint:all
	lis.Close()

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls requires both a certificate and a key")
	}
	if !c.insecure() {
		if _, err := c.tlsConfig(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) insecure() bool {
	return c.TLSCert == "" && c.TLSKey == ""
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) tlsConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.TLSCert, c.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("invalid tls key pair: %s", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}
