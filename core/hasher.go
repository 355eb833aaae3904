// hasher.go – thin adapter over the external SHA-512 / RIPEMD-160
// primitives (spec §2 component 2). The primitives themselves are out of
// scope; this file only provides the double_sha512 and ripe-hash
// compositions the rest of the engine relies on.
package core

import (
	"crypto/sha512"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // reference ecosystem still specifies RIPEMD-160
)

// DoubleSHA512 returns SHA-512(SHA-512(data)).
func DoubleSHA512(data []byte) [64]byte {
	first := sha512.Sum512(data)
	return sha512.Sum512(first[:])
}

// RipeHash returns RIPEMD-160(SHA-512(signingKey || encryptionKey)), the
// 20-byte identifier used by the address algebra (spec §3).
func RipeHash(signingKey, encryptionKey []byte) [20]byte {
	sha := sha512.Sum512(append(append([]byte{}, signingKey...), encryptionKey...))
	h := ripemd160.New()
	h.Write(sha[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}
