package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// sealedPrefix marks documents written by a Sealer so plaintext documents
// written before a secret was configured can still be read.
const sealedPrefix = "sealed:"

// Sealer encrypts the local store document at rest with AES-GCM. A nil Sealer
// passes data through untouched.
type Sealer struct {
	gcm cipher.AEAD
}

type envelope struct {
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// NewSealer derives the key from secret with scrypt. An empty secret yields a
// nil Sealer.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, nil
	}
	salt := sha256.Sum256([]byte("hackhub-local:" + secret))
	key, err := scrypt.Key([]byte(secret), salt[:], 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

func (s *Sealer) Enabled() bool { return s != nil }

// Seal returns the sealed form of doc.
func (s *Sealer) Seal(doc string) (string, error) {
	if s == nil {
		return doc, nil
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := s.gcm.Seal(nil, nonce, []byte(doc), nil)
	out, err := json.Marshal(envelope{
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", err
	}
	return sealedPrefix + string(out), nil
}

// Open reverses Seal. Unsealed input is returned as is.
func (s *Sealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s == nil {
		return "", errors.New("document is sealed but no secret is configured")
	}
	var env envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(stored, sealedPrefix)), &env); err != nil {
		return "", err
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", err
	}
	if len(nonce) != s.gcm.NonceSize() {
		return "", errors.New("invalid nonce size")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return "", err
	}
	plain, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
