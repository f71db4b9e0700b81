// Package auth signs requests to the terminal gateway and bridge with
// RSA-PSS, so a gateway exposed beyond localhost can reject foreign callers.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Header names carried on signed requests.
const (
	HeaderKey       = "X-Relay-Key"
	HeaderTimestamp = "X-Relay-Timestamp"
	HeaderSignature = "X-Relay-Signature"
)

// ErrBadSignature is returned by Verify for missing, stale or forged headers.
var ErrBadSignature = errors.New("bad request signature")

// Signer produces authentication headers for a request.
type Signer interface {
	SignRequest(method, path string) (map[string]string, error)
}

// Credentials holds the key ID and private key for signing requests.
type Credentials struct {
	KeyID      string          // identifier the gateway maps to a public key
	PrivateKey *rsa.PrivateKey // RSA private key for signing
	now        func() time.Time
}

// LoadCredentials loads credentials from key ID and private key file path.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("key ID is required")
	}
	if privateKeyPath == "" {
		return nil, errors.New("private key path is required")
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Credentials{
		KeyID:      keyID,
		PrivateKey: privateKey,
	}, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// PKCS#8 first, then PKCS#1
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}

// SignRequest generates authentication headers for a request.
// For the bridge WebSocket handshake, method is "GET" and path the socket path.
func (c *Credentials) SignRequest(method, path string) (map[string]string, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	timestampMs := now().UnixMilli()

	signature, err := sign(c.PrivateKey, message(timestampMs, method, path))
	if err != nil {
		return nil, err
	}

	return map[string]string{
		HeaderKey:       c.KeyID,
		HeaderTimestamp: strconv.FormatInt(timestampMs, 10),
		HeaderSignature: signature,
	}, nil
}

// Apply signs the request and sets the headers on h.
func Apply(s Signer, h http.Header, method, path string) error {
	if s == nil {
		return nil
	}
	headers, err := s.SignRequest(method, path)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	for k, v := range headers {
		h.Set(k, v)
	}
	return nil
}

// Verify checks the headers of a signed request against pub. Signatures older
// than maxSkew are rejected.
func Verify(pub *rsa.PublicKey, h http.Header, method, path string, maxSkew time.Duration) error {
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp: %v", ErrBadSignature, err)
	}
	if skew := time.Since(time.UnixMilli(ts)); skew > maxSkew || skew < -maxSkew {
		return fmt.Errorf("%w: timestamp skew %v", ErrBadSignature, skew)
	}

	sig, err := base64.StdEncoding.DecodeString(h.Get(HeaderSignature))
	if err != nil {
		return fmt.Errorf("%w: signature encoding: %v", ErrBadSignature, err)
	}

	hashed := sha256.Sum256([]byte(message(ts, method, path)))
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, opts); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// message is timestamp_ms + method + path.
func message(timestampMs int64, method, path string) string {
	return strconv.FormatInt(timestampMs, 10) + method + path
}

func sign(key *rsa.PrivateKey, msg string) (string, error) {
	hashed := sha256.Sum256([]byte(msg))

	signature, err := rsa.SignPSS(
		rand.Reader,
		key,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}
