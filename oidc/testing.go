// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestGenerateKeys returns a PEM encoded ECDSA P-256 key pair for signing
// test tokens.
func TestGenerateKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	require := require.New(t)
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	privDER, err := x509.MarshalECPrivateKey(k)
	require.NoError(err)
	pubDER, err := x509.MarshalPKIXPublicKey(k.Public())
	require.NoError(err)
	return pemString("PUBLIC KEY", pubDER), pemString("EC PRIVATE KEY", privDER)
}

// TestSignJWT signs claims and privateClaims with the PEM encoded ECDSA key
// using ES256.  The token has no "kid" header, so only key sets that try
// every key will verify it.
func TestSignJWT(t *testing.T, ecdsaPrivKeyPEM string, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)
	key, err := parseECPrivateKey(ecdsaPrivKeyPEM)
	require.NoError(err)
	raw, err := signES256(key, "", claims, privateClaims)
	require.NoError(err)
	return raw
}

// TestGenerateCA returns a PEM encoded self-signed CA certificate for hosts.
// It's valid for an hour.
func TestGenerateCA(t *testing.T, hosts []string) string {
	t.Helper()
	require := require.New(t)
	k, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(err)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(err)

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"oidc-webapp test"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
			continue
		}
		tmpl.DNSNames = append(tmpl.DNSNames, h)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &k.PublicKey, k)
	require.NoError(err)
	return pemString("CERTIFICATE", der)
}

func pemString(typ string, der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}))
}

func parseECPrivateKey(keyPEM string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}
