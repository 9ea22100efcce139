package orchestrator

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Files written by GenerateCertChain.
const (
	CertFile = "cert.pem"
	KeyFile  = "priv.key"
	CAFile   = "ca.pem"
)

var serverNames = []string{"server", "server4", "server6"}               //nolint:gochecknoglobals
var serverIPs = []string{"193.167.100.100", "fd00:cafe:cafe:100::100"} //nolint:gochecknoglobals

type issuer struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// GenerateCertChain writes a root CA to ca.pem, and a chain of chainLength certificates ending in
// the server's leaf to cert.pem, with the leaf's key in priv.key. A chainLength below 1 is
// treated as 1, where the leaf is signed by the root directly.
func GenerateCertChain(dir string, chainLength int) error {
	if chainLength < 1 {
		chainLength = 1
	}
	root, rootDER, err := newCert(nil, "quic-interop root", true)
	if err != nil {
		return err
	}
	parent := root
	var chain [][]byte
	for i := 1; i < chainLength; i++ {
		inter, der, err := newCert(parent, fmt.Sprintf("quic-interop intermediate %d", i), true)
		if err != nil {
			return err
		}
		chain = append([][]byte{der}, chain...)
		parent = inter
	}
	leaf, leafDER, err := newCert(parent, "server", false)
	if err != nil {
		return err
	}
	chain = append([][]byte{leafDER}, chain...)

	keyDER, err := x509.MarshalPKCS8PrivateKey(leaf.key)
	if err != nil {
		return err
	}
	if err := writePEM(filepath.Join(dir, CAFile), "CERTIFICATE", rootDER); err != nil {
		return err
	}
	if err := writePEM(filepath.Join(dir, CertFile), "CERTIFICATE", chain...); err != nil {
		return err
	}
	return writePEM(filepath.Join(dir, KeyFile), "PRIVATE KEY", keyDER)
}

func newCert(parent *issuer, name string, isCA bool) (*issuer, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 24 * time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		template.DNSNames = serverNames
		for _, ip := range serverIPs {
			template.IPAddresses = append(template.IPAddresses, net.ParseIP(ip))
		}
	}
	signer := &issuer{cert: template, key: key}
	if parent != nil {
		signer = parent
	}
	der, err := x509.CreateCertificate(rand.Reader, template, signer.cert, &key.PublicKey, signer.key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return &issuer{cert: cert, key: key}, der, nil
}

func writePEM(path, blockType string, blocks ...[]byte) error {
	var data []byte
	for _, b := range blocks {
		data = append(data, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: b})...)
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec
}
