package airdrop

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
)

// appleRootPool holds the trusted root(s) used for the coarse
// signature-chain check on sender records (spec §4.7). No Apple root
// certificate is bundled: the pool is empty until SetAppleRoots is
// called, and while it is empty every non-empty sender record fails
// verification.
var appleRootPool = x509.NewCertPool()

// SetAppleRoots installs the trusted root pool used to validate sender
// records. Call once at startup before accepting non-empty sender
// records.
func SetAppleRoots(pool *x509.CertPool) {
	if pool != nil {
		appleRootPool = pool
	}
}

// pkcs7ContentInfo models only as much of RFC 2315 §7's outer structure
// as is needed to reach the embedded certificates — a coarse chain
// check, not a full CMS verifier.
type pkcs7ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type pkcs7SignedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue
	ContentInfo      asn1.RawValue
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
}

// VerifySenderRecord parses record as a PKCS#7 SignedData, extracts its
// embedded certificate chain, and verifies the leaf against the root pool
// installed by SetAppleRoots. Returns the leaf certificate on success.
func VerifySenderRecord(record []byte) (*x509.Certificate, error) {
	var outer pkcs7ContentInfo
	if _, err := asn1.Unmarshal(record, &outer); err != nil {
		return nil, NewMalformedInputError("VerifySenderRecord", fmt.Errorf("parse PKCS7 ContentInfo: %w", err))
	}

	var signed pkcs7SignedData
	if _, err := asn1.Unmarshal(outer.Content.Bytes, &signed); err != nil {
		return nil, NewMalformedInputError("VerifySenderRecord", fmt.Errorf("parse PKCS7 SignedData: %w", err))
	}

	certs, err := parseCertificateSet(signed.Certificates.Bytes)
	if err != nil {
		return nil, NewMalformedInputError("VerifySenderRecord", err)
	}
	if len(certs) == 0 {
		return nil, NewMalformedInputError("VerifySenderRecord", errors.New("no certificates in sender record"))
	}

	leaf := certs[0]
	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}

	if _, err := leaf.Verify(x509.VerifyOptions{Roots: appleRootPool, Intermediates: intermediates}); err != nil {
		return nil, fmt.Errorf("airdrop: sender record signature chain: %w", err)
	}
	return leaf, nil
}

func parseCertificateSet(der []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := der
	for len(rest) > 0 {
		var raw asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &raw)
		if err != nil {
			return nil, fmt.Errorf("parse certificate set: %w", err)
		}
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
