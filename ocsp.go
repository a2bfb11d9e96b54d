package iodispatch

import (
	"bytes"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ocsp"
)

const ocspMime = "application/ocsp-request"

type OCSPProcessor struct {
	ocspResponderUrl string
	client           *http.Client
}

func NewOcspProcessor(responderUrl string, client *http.Client) *OCSPProcessor {
	if client == nil {
		client = http.DefaultClient
	}
	return &OCSPProcessor{
		ocspResponderUrl: responderUrl,
		client:           client,
	}
}

// OcspVerify asks the responder about cert and returns the raw response,
// which is only useful as a staple when the status is Good.
func (o *OCSPProcessor) OcspVerify(cert, issuer *x509.Certificate) ([]byte, error) {
	request, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return nil, err
	}
	response, err := o.sendOcspRequest(request)
	if err != nil {
		return nil, err
	}
	ocspResp, err := ocsp.ParseResponseForCert(response, cert, issuer)
	if err != nil {
		return nil, err
	}
	if ocspResp.Status != ocsp.Good {
		return nil, fmt.Errorf("certificate %s has OCSP status %d", cert.SerialNumber, ocspResp.Status)
	}
	return response, nil
}

func (o *OCSPProcessor) Staple(cert *tls.Certificate, issuer *x509.Certificate) error {
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return err
	}
	ocspStaple, err := o.OcspVerify(x509Cert, issuer)
	if err != nil {
		return err
	}
	cert.OCSPStaple = ocspStaple
	return nil
}

func (o *OCSPProcessor) sendOcspRequest(request []byte) ([]byte, error) {
	rsp, err := o.client.Post(o.ocspResponderUrl, ocspMime, bytes.NewReader(request))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rsp.Body.Close(); err != nil {
			log.Error().Msgf("got error while close http response: %+v", err)
		}
	}()
	if rsp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCSP responder returned %s", rsp.Status)
	}
	return io.ReadAll(rsp.Body)
}
