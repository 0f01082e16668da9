package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	PublicKeyFile  = "ledger.pub"
	PrivateKeyFile = "ledger.priv"
)

// GenerateKeyPair creates a new ed25519 key pair (public+private)
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// SaveKeyPair writes both keys hex encoded with owner-only permissions.
func SaveKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey, pubPath, privPath string) error {
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0o600); err != nil {
		return err
	}
	return os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0o600)
}

// EnsureKeyPair loads the ledger signing keys from dir, generating them on
// first use. The bool reports whether new keys were created.
func EnsureKeyPair(dir string) (ed25519.PublicKey, ed25519.PrivateKey, bool, error) {
	pubPath := filepath.Join(dir, PublicKeyFile)
	privPath := filepath.Join(dir, PrivateKeyFile)

	if _, err := os.Stat(privPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, false, fmt.Errorf("create key dir: %w", err)
		}
		pub, priv, err := GenerateKeyPair()
		if err != nil {
			return nil, nil, false, err
		}
		if err := SaveKeyPair(pub, priv, pubPath, privPath); err != nil {
			return nil, nil, false, fmt.Errorf("save keys: %w", err)
		}
		return pub, priv, true, nil
	}

	priv, err := LoadPrivateKey(privPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("load private key: %w", err)
	}
	return priv.Public().(ed25519.PublicKey), priv, false, nil
}

// LoadPrivateKey loads an ed25519 private key from a hex-encoded file
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return ed25519.PrivateKey(raw), nil
}

// LoadPublicKey loads an ed25519 public key from a hex-encoded file
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("invalid public key size")
	}
	return ed25519.PublicKey(raw), nil
}

func readHex(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimSpace(string(data)))
}

// SignData signs arbitrary data and returns the hex signature
func SignData(priv ed25519.PrivateKey, data []byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, data))
}

// VerifySignatureFromHex verifies a hex signature against a hex public key.
func VerifySignatureFromHex(pubHex string, data []byte, sigHex string) (bool, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, err
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.New("invalid public key size")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}
