// address.go – address algebra: address-string encode/decode, and for v4+
// the tag/address-derived-key pair used to locate and decrypt pubkey
// objects on a gateway (spec §4.3).
package core

import (
	"bytes"

	"github.com/mr-tron/base58"
)

const addressPrefix = "BM-"

// Address is the immutable identity the spec's data model describes: a
// version, a stream (always 1 in this client) and the 20-byte ripe-hash of
// (signing-key ‖ encryption-key) post double-SHA-512.
type Address struct {
	Version uint64
	Stream  uint64
	Ripe    [20]byte
}

// NewAddress validates version/stream and constructs an Address. Version
// must be in 1..4; stream must be 1 (the only stream this client serves).
func NewAddress(version, stream uint64, ripe [20]byte) (Address, error) {
	if version < 1 || version > 4 {
		return Address{}, newErr(KindInvalidAddress, "address.NewAddress", errString("version out of range"))
	}
	if stream != 1 {
		return Address{}, newErr(KindInvalidAddress, "address.NewAddress", errString("stream out of range"))
	}
	return Address{Version: version, Stream: stream, Ripe: ripe}, nil
}

// stripLeadingZeros removes leading zero bytes, as the wire format does
// before base58-encoding the ripe hash.
func stripLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

// ripeChecksumPreimage builds version_varint ‖ stream_varint ‖
// ripe_hash_stripped, the preimage both the checksum and the v4+ tag/key
// derivation hash over.
func ripeChecksumPreimage(version, stream uint64, ripe [20]byte) []byte {
	buf := PutVarInt(nil, version)
	buf = PutVarInt(buf, stream)
	buf = append(buf, stripLeadingZeros(ripe[:])...)
	return buf
}

// String renders the address as "BM-" ‖ base58(version ‖ stream ‖
// ripe_stripped ‖ checksum4).
func (a Address) String() string {
	preimage := ripeChecksumPreimage(a.Version, a.Stream, a.Ripe)
	sum := DoubleSHA512(preimage)
	checksum := sum[:4]

	payload := append(append([]byte{}, preimage...), checksum...)
	return addressPrefix + base58.Encode(payload)
}

// DecodeAddress reverses String, validating the 4-byte checksum. It fails
// with InvalidAddress on checksum mismatch, unknown version, or malformed
// var-ints.
func DecodeAddress(s string) (Address, error) {
	if len(s) <= len(addressPrefix) || s[:len(addressPrefix)] != addressPrefix {
		return Address{}, newErr(KindInvalidAddress, "address.DecodeAddress", errString("missing BM- prefix"))
	}
	raw, err := base58.Decode(s[len(addressPrefix):])
	if err != nil {
		return Address{}, newErr(KindInvalidAddress, "address.DecodeAddress", err)
	}
	if len(raw) < 4 {
		return Address{}, newErr(KindInvalidAddress, "address.DecodeAddress", errString("payload too short"))
	}

	body := raw[:len(raw)-4]
	checksum := raw[len(raw)-4:]

	version, n, err := GetVarIntBounded(body, 1, 4)
	if err != nil {
		return Address{}, newErr(KindInvalidAddress, "address.DecodeAddress", err)
	}
	body = body[n:]

	stream, n, err := GetVarIntBounded(body, 1, 1)
	if err != nil {
		return Address{}, newErr(KindInvalidAddress, "address.DecodeAddress", err)
	}
	body = body[n:]

	if len(body) > 20 {
		return Address{}, newErr(KindInvalidAddress, "address.DecodeAddress", errString("ripe hash too long"))
	}
	var ripe [20]byte
	copy(ripe[20-len(body):], body)

	preimage := ripeChecksumPreimage(version, stream, ripe)
	sum := DoubleSHA512(preimage)
	if !bytes.Equal(sum[:4], checksum) {
		return Address{}, newErr(KindInvalidAddress, "address.DecodeAddress", errString("checksum mismatch"))
	}

	return Address{Version: version, Stream: stream, Ripe: ripe}, nil
}

// TagAndKey computes, for v4+ addresses only, the 32-byte tag used to
// locate the pubkey object on a gateway and the 32-byte address-derived
// key that seeds the ECDH private key used to decrypt it (spec §4.3). It
// returns ok=false for v<4 addresses, which have no tag/key.
func (a Address) TagAndKey() (tag [32]byte, key [32]byte, ok bool) {
	if a.Version < 4 {
		return tag, key, false
	}
	preimage := ripeChecksumPreimage(a.Version, a.Stream, a.Ripe)
	sum := DoubleSHA512(preimage)
	copy(tag[:], sum[:32])
	copy(key[:], sum[32:])
	return tag, key, true
}
