package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/hkdf"
)

// ErrDecrypt is returned when a payload does not open under the current key
// for the given scope and matches no legacy key either.
var ErrDecrypt = errors.New("failed to decrypt message payload")

const contentKeyInfo = "chatcore message content v1"

// Encryptor seals message content at rest with AES-256-GCM. Every payload is
// bound to a scope passed as additional data, so ciphertext copied onto
// another message or conversation fails to open. Payloads written under
// Fernet keys remain readable and carry no scope.
type Encryptor struct {
	aead       cipher.AEAD
	fernetKeys []*fernet.Key
}

// NewEncryptor derives the content key from secret with HKDF-SHA256.
// legacyKeys are Fernet keys accepted for decryption only.
func NewEncryptor(secret []byte, legacyKeys []string) (*Encryptor, error) {
	if len(secret) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(contentKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive content key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	var fernetKeys []*fernet.Key
	for _, raw := range append([]string{string(secret)}, legacyKeys...) {
		if k, err := fernet.DecodeKey(strings.TrimSpace(raw)); err == nil {
			fernetKeys = append(fernetKeys, k)
		}
	}
	return &Encryptor{aead: aead, fernetKeys: fernetKeys}, nil
}

// Encrypt seals plain for scope and returns nonce||ciphertext in base64.
func (e *Encryptor) Encrypt(plain string, scope []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), scope)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(enc string, scope []byte) (string, error) {
	if raw, err := base64.StdEncoding.DecodeString(enc); err == nil && len(raw) >= e.aead.NonceSize() {
		n := e.aead.NonceSize()
		if plain, err := e.aead.Open(nil, raw[:n], raw[n:], scope); err == nil {
			return string(plain), nil
		}
	}
	if len(e.fernetKeys) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(enc), 0, e.fernetKeys); plain != nil {
			return string(plain), nil
		}
	}
	return "", ErrDecrypt
}
