package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LoadKeyFromFile reads a hex private key from filePath. A key stored in
// plain text (0x-prefixed) is encrypted in place with the secret and
// returned; otherwise the file content is decrypted.
func LoadKeyFromFile(filePath string, secret string) (string, error) {
	key := deriveKey(secret)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", errors.Wrap(err, "read key file")
	}
	txt := strings.TrimSpace(string(data))
	if strings.HasPrefix(txt, "0x") {
		plain := strings.TrimPrefix(txt, "0x")
		if err := writeEncrypted(filePath, plain, key); err != nil {
			return "", err
		}
		return plain, nil
	}
	return Decrypt(txt, key)
}

func writeEncrypted(filePath string, txt string, key []byte) error {
	zap.L().Info("encrypting key file", zap.String("path", filePath))
	txtEnc, err := Encrypt(txt, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, []byte(txtEnc), 0600); err != nil {
		return errors.Wrap(err, "write key file")
	}
	return nil
}

// deriveKey maps an arbitrary secret to an AES-256 key
func deriveKey(secret string) []byte {
	h := sha256.Sum256([]byte(secret))
	return h[:]
}

func Encrypt(plainText string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	encrypted := gcm.Seal(nonce, nonce, []byte(plainText), nil)
	return hex.EncodeToString(encrypted), nil
}

func Decrypt(encryptedText string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	encrypted, err := hex.DecodeString(encryptedText)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(encrypted) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, encrypted := encrypted[:nonceSize], encrypted[nonceSize:]
	plainText, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", err
	}
	return string(plainText), nil
}
