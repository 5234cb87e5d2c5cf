package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// envelopeVersion tags every ciphertext produced by Encrypt so a future
// construction change can be detected rather than silently misparsed.
const envelopeVersion = "v1"

var (
	ErrInvalidEnvelope  = errors.New("crypto: invalid envelope")
	ErrEnvelopeTampered = errors.New("crypto: envelope MAC mismatch")
	ErrInvalidKeyLength = errors.New("crypto: key must be 32 bytes")
)

// Encrypt seals plaintext under key (must be 32 bytes, AES-256) using
// CBC mode with a random IV, then authenticates IV+ciphertext with
// HMAC-SHA256 under the same key (encrypt-then-MAC). The result is the
// versioned envelope "v1:<iv>:<ciphertext>:<mac>", each segment
// base64 (RawURLEncoding).
func Encrypt(key []byte, plaintext string) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("crypto: generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	mac := computeMAC(key, iv, ciphertext)

	return strings.Join([]string{
		envelopeVersion,
		base64.RawURLEncoding.EncodeToString(iv),
		base64.RawURLEncoding.EncodeToString(ciphertext),
		base64.RawURLEncoding.EncodeToString(mac),
	}, ":"), nil
}

// Decrypt reverses Encrypt, verifying the MAC before decrypting so a
// tampered or corrupted envelope never reaches the cipher.
func Decrypt(key []byte, envelope string) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKeyLength
	}

	parts := strings.SplitN(envelope, ":", 4)
	if len(parts) != 4 || parts[0] != envelopeVersion {
		return "", ErrInvalidEnvelope
	}

	iv, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrInvalidEnvelope
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrInvalidEnvelope
	}
	tag, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return "", ErrInvalidEnvelope
	}

	expected := computeMAC(key, iv, ciphertext)
	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return "", ErrEnvelopeTampered
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", ErrInvalidEnvelope
	}
	return string(plaintext), nil
}

func computeMAC(key, iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidEnvelope
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidEnvelope
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidEnvelope
		}
	}
	return data[:len(data)-padLen], nil
}
