// Package codec implements the symmetric authenticated-by-convention
// padding+encrypt/decrypt of chunk bodies before they are uploaded to the
// remote CDN.
//
// The on-wire format is base64(iv || ciphertext), where ciphertext is
// PKCS#7-padded plaintext run through AES-CBC with a key derived from the
// configured passphrase by SHA-256. There is no authentication tag: this
// matches the format already persisted by deployed chunks, so corrupted
// ciphertext surfaces as a decrypt error rather than an auth failure.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

const blockSize = aes.BlockSize // 16

// Errors returned by Codec.
var (
	ErrShortCiphertext = errors.New("codec: ciphertext shorter than one block")
	ErrNotBlockAligned = errors.New("codec: ciphertext is not a multiple of the block size")
	ErrBadPadding      = errors.New("codec: malformed padding")
)

// Codec encrypts and decrypts chunk bodies with a key derived from a
// passphrase.
type Codec struct {
	key [32]byte
}

// New derives a Codec's key from passphrase via SHA-256.
func New(passphrase []byte) *Codec {
	return &Codec{key: sha256.Sum256(passphrase)}
}

// Encrypt pads plain to the block size, generates a fresh random IV, and
// returns base64(iv || ciphertext).
func (c *Codec) Encrypt(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plain, blockSize)

	iv := make([]byte, blockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	out := make([]byte, blockSize+len(ciphertext))
	copy(out, iv)
	copy(out[blockSize:], ciphertext)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(out)))
	base64.StdEncoding.Encode(encoded, out)
	return encoded, nil
}

// Decrypt reverses Encrypt: base64-decode, split iv||ciphertext, CBC
// decrypt, and strip PKCS#7 padding.
func (c *Codec) Decrypt(encoded []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(raw, encoded)
	if err != nil {
		return nil, err
	}
	raw = raw[:n]

	if len(raw) < blockSize {
		return nil, ErrShortCiphertext
	}
	iv, ciphertext := raw[:blockSize], raw[blockSize:]
	if len(ciphertext)%blockSize != 0 {
		return nil, ErrNotBlockAligned
	}
	if len(ciphertext) == 0 {
		return nil, ErrShortCiphertext
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plain, ciphertext)

	return pkcs7Unpad(plain)
}

func pkcs7Pad(data []byte, size int) []byte {
	padLen := size - len(data)%size
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrBadPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > blockSize {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-padLen], nil
}
