package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the required AES-256 key length in bytes.
	KeySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrKeySize is returned by New when the key is not exactly KeySize bytes.
	ErrKeySize = errors.New("encryption key must be 32 bytes (256 bits)")
	// ErrDecryption is returned for any blob that cannot be authenticated and opened.
	ErrDecryption = errors.New("decryption failed")
)

type sealed struct {
	IV   string `json:"iv"`
	Data string `json:"data"`
	Tag  string `json:"tag"`
}

// Box seals and opens payloads with AES-256-GCM. A Box is safe for concurrent use.
type Box struct {
	aead   cipher.AEAD
	random io.Reader
}

// New builds a Box over a 32-byte key. The key is copied.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrKeySize, len(key))
	}

	k := make([]byte, KeySize)
	copy(k, key)

	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Box{aead: aead, random: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh nonce and returns the opaque blob.
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(b.random, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	out := b.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]

	raw, err := json.Marshal(sealed{
		IV:   base64.StdEncoding.EncodeToString(nonce),
		Data: base64.StdEncoding.EncodeToString(ciphertext),
		Tag:  base64.StdEncoding.EncodeToString(tag),
	})
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncryptString is Encrypt for text payloads.
func (b *Box) EncryptString(plaintext string) (string, error) {
	return b.Encrypt([]byte(plaintext))
}

// EncryptJSON marshals v and seals the result.
func (b *Box) EncryptJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return b.Encrypt(data)
}

// Decrypt authenticates and opens a blob produced by Encrypt. Every failure,
// including malformed encodings, is reported as ErrDecryption.
func (b *Box) Decrypt(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: outer encoding", ErrDecryption)
	}

	var s sealed
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: envelope", ErrDecryption)
	}

	nonce, err := base64.StdEncoding.DecodeString(s.IV)
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: nonce", ErrDecryption)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext", ErrDecryption)
	}
	tag, err := base64.StdEncoding.DecodeString(s.Tag)
	if err != nil || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: tag", ErrDecryption)
	}

	combined := make([]byte, 0, len(ciphertext)+len(tag))
	combined = append(combined, ciphertext...)
	combined = append(combined, tag...)

	plaintext, err := b.aead.Open(nil, nonce, combined, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication", ErrDecryption)
	}
	return plaintext, nil
}

// DecryptString is Decrypt for text payloads.
func (b *Box) DecryptString(blob string) (string, error) {
	data, err := b.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecryptJSON opens blob and unmarshals the plaintext into v. A payload that
// authenticates but does not decode into v is also ErrDecryption.
func (b *Box) DecryptJSON(blob string, v any) error {
	data, err := b.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: payload", ErrDecryption)
	}
	return nil
}
