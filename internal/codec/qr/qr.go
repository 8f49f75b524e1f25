// Package qr renders credentials as encrypted QR codes and decrypts scanned
// payloads back into codec wire text. The scan path accepts plain JSON too,
// so decryption lives in front of the codec rather than inside it.
package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"

	"ms-admission/internal/codec"
	"ms-admission/internal/models"
)

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// EncryptCredential encodes the credential and encrypts the payload. The
// returned string is what ends up inside the QR image.
func (g *Generator) EncryptCredential(cred models.Credential) (string, error) {
	payload, err := codec.Encode(cred)
	if err != nil {
		return "", err
	}
	return encryptAES([]byte(payload), g.secret)
}

// RenderQR produces a PNG QR image for the credential.
func (g *Generator) RenderQR(cred models.Credential, size int) ([]byte, error) {
	encrypted, err := g.EncryptCredential(cred)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(encrypted, qrcode.Medium, size)
}

// Decrypt recovers the codec wire text from an encrypted scan payload.
func (g *Generator) Decrypt(encrypted string) (string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	if len(ciphertext) < aes.BlockSize {
		return "", fmt.Errorf("payload shorter than IV")
	}

	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return "", err
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])
	return string(data), nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
