package iodispatch

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

type TLSChannelFactory struct {
	config           *tls.Config
	handshakeTimeout time.Duration
}

// NewTLSChannelFactory loads the server key pair, turns on client
// certificate verification when a CA is configured and staples an OCSP
// response when asked to.
func NewTLSChannelFactory(config TlsConfig) (*TLSChannelFactory, error) {
	cert, err := tls.LoadX509KeyPair(config.CertPath, config.PkPath)
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if config.CACertPath != "" {
		caCert, err := parseCaCertFile(config.CACertPath)
		if err != nil {
			return nil, err
		}
		caCertPool := x509.NewCertPool()
		caCertPool.AddCert(caCert)
		tlsConfig.ClientCAs = caCertPool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert

		if config.OcspStapleEnabled {
			ocspProc := NewOcspProcessor(config.OcspResponderUrl, http.DefaultClient)
			if err = ocspProc.Staple(&tlsConfig.Certificates[0], caCert); err != nil {
				return nil, err
			}
			log.Info().Msgf("stapled OCSP response from %s", config.OcspResponderUrl)
		}
	}
	return NewTLSChannelFactoryWithConfig(tlsConfig, time.Duration(config.HandshakeTimeoutMs)*time.Millisecond), nil
}

func NewTLSChannelFactoryWithConfig(config *tls.Config, handshakeTimeout time.Duration) *TLSChannelFactory {
	return &TLSChannelFactory{config: config, handshakeTimeout: handshakeTimeout}
}

func (f *TLSChannelFactory) NewChannel(fd int) (Channel, error) {
	return newSecureChannel(fd, f.config, f.handshakeTimeout), nil
}

// NewChannelFactory picks the plain or the TLS factory from configuration.
func NewChannelFactory(config TlsConfig) (ChannelFactory, error) {
	if !config.Enabled {
		return PlainChannelFactory{}, nil
	}
	return NewTLSChannelFactory(config)
}

func parseCaCertFile(filename string) (*x509.Certificate, error) {
	ct, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(ct)
	if block == nil {
		return nil, errors.New("no PEM data in " + filename)
	}
	return x509.ParseCertificate(block.Bytes)
}
