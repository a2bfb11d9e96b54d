package iodispatch

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
	"golang.org/x/sys/unix"
)

type testCert struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	der  []byte
}

func issueCert(t *testing.T, serial int64, parent *testCert) *testCert {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  parent == nil,
	}
	signerCert, signerKey := template, key
	if parent != nil {
		signerCert, signerKey = parent.cert, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return &testCert{cert: cert, key: key, der: der}
}

func (c *testCert) tlsCertificate() tls.Certificate {
	return tls.Certificate{Certificate: [][]byte{c.der}, PrivateKey: c.key}
}

// socketPair returns a non-blocking server descriptor and a net.Conn for the
// other end.
func socketPair(t *testing.T) (int, net.Conn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err = unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	file := os.NewFile(uintptr(fds[1]), "peer")
	conn, err := net.FileConn(file)
	if err != nil {
		t.Fatalf("file conn: %v", err)
	}
	_ = file.Close()
	return fds[0], conn
}

func readUntil(t *testing.T, channel Channel, want int) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	buf := make([]byte, 64)
	var got []byte
	for len(got) < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, read %q", got)
		}
		n, err := channel.Read(buf)
		if err == ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	return got
}

func TestSecureChannelRoundTrip(t *testing.T) {
	server := issueCert(t, 1, nil)
	factory := NewTLSChannelFactoryWithConfig(&tls.Config{
		Certificates: []tls.Certificate{server.tlsCertificate()},
	}, 5*time.Second)

	fd, peer := socketPair(t)
	channel, err := factory.NewChannel(fd)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	defer channel.Close()
	if channel.Fd() != fd {
		t.Fatalf("want fd %d, got %d", fd, channel.Fd())
	}

	client := tls.Client(peer, &tls.Config{InsecureSkipVerify: true})
	defer client.Close()
	clientDone := make(chan error, 1)
	replies := make(chan string, 1)
	go func() {
		if _, err := client.Write([]byte("hello")); err != nil {
			clientDone <- err
			return
		}
		reply := make([]byte, 5)
		if _, err := io.ReadFull(client, reply); err != nil {
			clientDone <- err
			return
		}
		replies <- string(reply)
		clientDone <- nil
	}()

	if got := readUntil(t, channel, 5); string(got) != "hello" {
		t.Fatalf("want hello, got %q", got)
	}
	if n, err := channel.Write([]byte("world")); err != nil || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if err := <-clientDone; err != nil {
		t.Fatalf("client: %v", err)
	}
	if reply := <-replies; reply != "world" {
		t.Fatalf("want world, got %q", reply)
	}
}

func TestSecureChannelHandshakeTimeout(t *testing.T) {
	server := issueCert(t, 1, nil)
	factory := NewTLSChannelFactoryWithConfig(&tls.Config{
		Certificates: []tls.Certificate{server.tlsCertificate()},
	}, 50*time.Millisecond)

	fd, peer := socketPair(t)
	defer peer.Close()
	channel, _ := factory.NewChannel(fd)
	defer channel.Close()

	start := time.Now()
	_, err := channel.Read(make([]byte, 16))
	if err == nil {
		t.Fatalf("handshake with a silent peer must fail")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("handshake wait was not bounded: %v", elapsed)
	}
}

func newOcspResponder(t *testing.T, issuer *testCert, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		request, err := ocsp.ParseRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		now := time.Now()
		response, err := ocsp.CreateResponse(issuer.cert, issuer.cert, ocsp.Response{
			Status:       status,
			SerialNumber: request.SerialNumber,
			ThisUpdate:   now.Add(-time.Minute),
			NextUpdate:   now.Add(time.Hour),
		}, issuer.key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(response)
	}))
}

func TestOcspStapleGood(t *testing.T) {
	ca := issueCert(t, 1, nil)
	leaf := issueCert(t, 2, ca)
	responder := newOcspResponder(t, ca, ocsp.Good)
	defer responder.Close()

	cert := leaf.tlsCertificate()
	if err := NewOcspProcessor(responder.URL, responder.Client()).Staple(&cert, ca.cert); err != nil {
		t.Fatalf("staple: %v", err)
	}
	if len(cert.OCSPStaple) == 0 {
		t.Fatalf("staple must be set for a good certificate")
	}
}

func TestOcspStapleRevoked(t *testing.T) {
	ca := issueCert(t, 1, nil)
	leaf := issueCert(t, 2, ca)
	responder := newOcspResponder(t, ca, ocsp.Revoked)
	defer responder.Close()

	cert := leaf.tlsCertificate()
	if err := NewOcspProcessor(responder.URL, responder.Client()).Staple(&cert, ca.cert); err == nil {
		t.Fatalf("revoked certificate must not be stapled")
	}
	if len(cert.OCSPStaple) != 0 {
		t.Fatalf("staple must stay empty")
	}
}
