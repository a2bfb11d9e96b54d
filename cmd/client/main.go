package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ocsp"
)

var useTls bool
var validateOcsp bool
var address string
var caCertPath string
var certPath string
var keyPath string
var connections int

var caCert *x509.Certificate

func init() {
	flag.BoolVar(&useTls, "t", false, "use TLS connection.")
	flag.BoolVar(&validateOcsp, "o", false, "validate stapled OCSP response.")
	flag.StringVar(&address, "a", "127.0.0.1:9000", "echo server address.")
	flag.StringVar(&caCertPath, "ca", "", "path to ca certificate file.")
	flag.StringVar(&certPath, "c", "", "path to client certificate file.")
	flag.StringVar(&keyPath, "k", "", "path to client private key file.")
	flag.IntVar(&connections, "n", 5, "number of connections to open.")
	flag.Parse()
	if caCertPath != "" {
		var err error
		if caCert, err = parseCertFile(caCertPath); err != nil {
			log.Fatal().Msgf("can't parse ca certificate file: %v", err)
		}
	}
}

func main() {
	for i := 0; i < connections; i++ {
		conn, err := openConnection()
		if err != nil {
			log.Fatal().Msgf("got error while connecting to echo server: %+v", err)
		}
		message := fmt.Sprintf("Hello: %d", i)
		if err = processConnection(message, conn); err != nil {
			log.Error().Msgf("connection %d: %v", i, err)
		}
	}
}

func openConnection() (net.Conn, error) {
	if !useTls {
		return net.Dial("tcp", address)
	}
	config := &tls.Config{VerifyConnection: verifyConnection}
	if caCert != nil {
		pool := x509.NewCertPool()
		pool.AddCert(caCert)
		config.RootCAs = pool
	} else {
		config.InsecureSkipVerify = true
	}
	if certPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}
	return tls.Dial("tcp", address, config)
}

func verifyConnection(state tls.ConnectionState) error {
	if !validateOcsp {
		return nil
	}
	if state.OCSPResponse == nil {
		return errors.New("server did not staple an OCSP response")
	}
	resp, err := ocsp.ParseResponse(state.OCSPResponse, caCert)
	if err != nil {
		return err
	}
	log.Info().Msgf("stapled OCSP response: [%+v, %+v] %d - %d", resp.ProducedAt, resp.NextUpdate, resp.SerialNumber, resp.Status)
	return nil
}

func parseCertFile(filename string) (*x509.Certificate, error) {
	ct, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(ct)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", filename)
	}
	return x509.ParseCertificate(block.Bytes)
}

func processConnection(msg string, conn net.Conn) error {
	defer conn.Close()
	message := []byte(msg)
	if _, err := conn.Write(message); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	buffer := make([]byte, len(message))
	if _, err := io.ReadFull(conn, buffer); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if !bytes.Equal(buffer, message) {
		return fmt.Errorf("echo mismatch: sent %q, got %q", message, buffer)
	}
	log.Info().Msgf("echoed %q", buffer)
	return nil
}
