package ssh

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// Credentials maps a username to its password. A user whose stored password
// is empty may connect without authenticating at all.
type Credentials map[string]string

// PasswordConfig delivers a server configuration implementing password
// authentication against the supplied credentials. Host key material is read
// from hostKeyPath; if hostKeyPath is empty an ephemeral RSA host key is
// generated instead.
func PasswordConfig(creds Credentials, hostKeyPath string) (*ssh.ServerConfig, error) {
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			return checkCredentials(creds, c, pass)
		},
		// Users with an empty stored password are let through without any
		// authentication exchange.
		NoClientAuth: true,
		NoClientAuthCallback: func(c ssh.ConnMetadata) (*ssh.Permissions, error) {
			password, ok := creds[c.User()]
			if ok && password == "" {
				return nil, nil
			}
			return nil, fmt.Errorf("authentication required for %q", c.User())
		},
	}

	hostKey, err := hostKeySigner(hostKeyPath)
	if err != nil {
		return nil, err
	}
	config.AddHostKey(hostKey)
	return config, nil
}

func checkCredentials(creds Credentials, c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
	password, ok := creds[c.User()]
	if ok && (password == "" || password == string(pass)) {
		return nil, nil
	}
	return nil, fmt.Errorf("password rejected for %q", c.User())
}

func hostKeySigner(path string) (ssh.Signer, error) {
	if path == "" {
		return generateHostKey()
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(pemBytes)
}

func generateHostKey() (hostkey ssh.Signer, err error) {
	reader := rand.Reader
	bitSize := 2048
	var key *rsa.PrivateKey
	if key, err = rsa.GenerateKey(reader, bitSize); err == nil {
		privateBytes := encodePrivateKeyToPEM(key)
		if hostkey, err = ssh.ParsePrivateKey(privateBytes); err == nil {
			return
		}
	}
	return
}

func encodePrivateKeyToPEM(privateKey *rsa.PrivateKey) []byte {
	// Get ASN.1 DER format
	privDER := x509.MarshalPKCS1PrivateKey(privateKey)

	// pem.Block
	privBlock := pem.Block{
		Type:    "RSA PRIVATE KEY",
		Headers: nil,
		Bytes:   privDER,
	}

	// Private key in PEM format
	privatePEM := pem.EncodeToMemory(&privBlock)

	return privatePEM
}
