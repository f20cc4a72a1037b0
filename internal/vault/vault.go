// Package vault encrypts face templates at rest. Templates are sealed with
// AES-256-GCM under a process-wide key and a random per-record nonce; only
// the fingerprint hash and quality score ever leave the store.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrKeyMissing = errors.New("template encryption key is not configured")
	ErrDecrypt    = errors.New("template decryption failed")
)

type Vault struct {
	key []byte
}

// New derives a 32-byte AES key from the configured secret.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrKeyMissing
	}
	sum := sha256.Sum256([]byte(secret))
	key := make([]byte, 32)
	copy(key, sum[:])
	return &Vault{key: key}, nil
}

// EncryptTemplate seals a feature vector. The nonce is prepended to the
// ciphertext and the whole payload is base64 encoded.
func (v *Vault) EncryptTemplate(vector []float64) (string, error) {
	if v == nil || len(v.key) == 0 {
		return "", ErrKeyMissing
	}
	block, err := aes.NewCipher(v.key)
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
	sealed := gcm.Seal(nonce, nonce, encodeVector(vector), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptTemplate opens a sealed template. Tampered or wrong-key payloads
// fail authentication and return ErrDecrypt, never a wrong-but-valid vector.
func (v *Vault) DecryptTemplate(ciphertext string) ([]float64, error) {
	if v == nil || len(v.key) == 0 {
		return nil, ErrKeyMissing
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(raw) < ns {
		return nil, fmt.Errorf("%w: payload too short", ErrDecrypt)
	}
	plain, err := gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	vec, err := decodeVector(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return vec, nil
}

// Fingerprint is a deterministic one-way digest of a vector, used only for
// cheap duplicate screening before a full comparison.
func Fingerprint(vector []float64) string {
	sum := sha256.Sum256(encodeVector(vector))
	return hex.EncodeToString(sum[:])
}

func encodeVector(vector []float64) []byte {
	buf := make([]byte, 4+8*len(vector))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vector)))
	for i, f := range vector {
		binary.LittleEndian.PutUint64(buf[4+8*i:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float64, error) {
	if len(buf) < 4 {
		return nil, errors.New("truncated vector payload")
	}
	n := int(binary.LittleEndian.Uint32(buf[:4]))
	if len(buf) != 4+8*n {
		return nil, errors.New("vector payload length mismatch")
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[4+8*i:]))
	}
	return out, nil
}
