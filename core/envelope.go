// envelope.go – ENVELOPE_ENCRYPTED: the ECIES-style hybrid encryption
// wrapper used by v4+ pubkey and message objects (spec §4.5). The elliptic
// curve primitives themselves (ECDH, AES-CBC, HMAC-SHA256) are the
// external collaborators named in spec §1; this file only wires them
// together the way the reference construction requires.
package core

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/sha512"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	uncompressedPointLen = 65
	ivLen                = aes.BlockSize
	macLen               = sha256.Size
)

// GenerateEnvelopeKey generates a secp256k1 keypair suitable for use as a
// v4+ encryption key (pubkey envelope) or recipient key (message envelope).
func GenerateEnvelopeKey() (*ecdsa.PrivateKey, error) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, newErr(KindInvalidParameter, "envelope.GenerateEnvelopeKey", err)
	}
	return priv, nil
}

// deriveSharedSecret performs ECDH over secp256k1: the caller's private
// scalar times the peer's public point, reduced to 64 bytes via SHA-512 so
// it can be split into an AES key and an HMAC key.
func deriveSharedSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.X == nil || pub.Y == nil || !ethcrypto.S256().IsOnCurve(pub.X, pub.Y) {
		return nil, newErr(KindKeyMismatch, "envelope.deriveSharedSecret", errString("peer point not on curve"))
	}
	sx, _ := ethcrypto.S256().ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	sum := sha512.Sum512(sx.Bytes())
	return sum[:], nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, newErr(KindDecryptFailed, "envelope.pkcs7Unpad", errString("invalid padded length"))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, newErr(KindDecryptFailed, "envelope.pkcs7Unpad", errString("invalid padding"))
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, newErr(KindDecryptFailed, "envelope.pkcs7Unpad", errString("corrupt padding"))
		}
	}
	return data[:len(data)-padLen], nil
}

// EncryptEnvelope implements ENVELOPE_ENCRYPTED(plaintext, recipientPub):
// an ephemeral EC keypair, ECDH against recipientPub, AES-CBC with PKCS#7
// padding, and an appended HMAC-SHA256 over IV‖ciphertext. The wire layout
// is ephemeralPubKey(65) ‖ iv(16) ‖ ciphertext ‖ mac(32).
func EncryptEnvelope(plaintext []byte, recipientPub *ecdsa.PublicKey) ([]byte, error) {
	ephemeral, err := GenerateEnvelopeKey()
	if err != nil {
		return nil, err
	}
	shared, err := deriveSharedSecret(ephemeral, recipientPub)
	if err != nil {
		return nil, err
	}
	aesKey, macKey := shared[:32], shared[32:]

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, newErr(KindDecryptFailed, "envelope.EncryptEnvelope", err)
	}

	iv := make([]byte, ivLen)
	if _, err := crand.Read(iv); err != nil {
		return nil, newErr(KindInvalidParameter, "envelope.EncryptEnvelope", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	ephemeralPub := ethcrypto.FromECDSAPub(&ephemeral.PublicKey)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	out := make([]byte, 0, uncompressedPointLen+ivLen+len(ciphertext)+macLen)
	out = append(out, ephemeralPub...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// DecryptEnvelope reverses EncryptEnvelope using the recipient's private
// key. It fails with KeyMismatch if the ephemeral public key does not
// reconstruct a valid point on the configured curve, and DecryptFailed if
// the HMAC does not verify.
func DecryptEnvelope(envelope []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	minLen := uncompressedPointLen + ivLen + aes.BlockSize + macLen
	if len(envelope) < minLen {
		return nil, newErr(KindMalformed, "envelope.DecryptEnvelope", errString("envelope too short"))
	}

	ephemeralPubBytes := envelope[:uncompressedPointLen]
	rest := envelope[uncompressedPointLen:]
	iv := rest[:ivLen]
	rest = rest[ivLen:]
	ciphertext := rest[:len(rest)-macLen]
	tag := rest[len(rest)-macLen:]

	ephemeralPub, err := ethcrypto.UnmarshalPubkey(ephemeralPubBytes)
	if err != nil {
		return nil, newErr(KindKeyMismatch, "envelope.DecryptEnvelope", err)
	}

	shared, err := deriveSharedSecret(priv, ephemeralPub)
	if err != nil {
		return nil, err
	}
	aesKey, macKey := shared[:32], shared[32:]

	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, tag) {
		return nil, newErr(KindDecryptFailed, "envelope.DecryptEnvelope", errString("mac mismatch"))
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, newErr(KindDecryptFailed, "envelope.DecryptEnvelope", errString("invalid ciphertext length"))
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, newErr(KindDecryptFailed, "envelope.DecryptEnvelope", err)
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded)
}
