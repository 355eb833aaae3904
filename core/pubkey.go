// pubkey.go – pubkey object assembly, serialization and parsing (spec §3,
// §4.4). The wire framing is: pow_nonce(8, optional) ‖ time(4|8) ‖
// version(varint) ‖ stream(varint) ‖ [v4+: tag(32) ‖ ENVELOPE_ENCRYPTED] |
// [v<4: inner verbatim], where inner = behaviour(4) ‖ signing-key[1:] ‖
// encryption-key[1:] ‖ (v>=3: ntpb ‖ eb ‖ sig_len ‖ sig).
package core

import (
	"crypto/ecdsa"
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Pubkey is the parsed, in-memory representation of a pubkey object.
type Pubkey struct {
	AddressVersion     uint64
	Stream             uint64
	Behaviour          [4]byte
	SigningKey         []byte // 65-byte uncompressed, 0x04-prefixed
	EncryptionKey      []byte // 65-byte uncompressed, 0x04-prefixed
	NonceTrialsPerByte uint64
	ExtraBytes         uint64
	Signature          []byte // absent (nil) for version <= 2
	Nonce              uint64
	PowDone            bool
	ExpiresTime        int64
}

// RipeHash recomputes the 20-byte ripe-hash this pubkey would produce,
// used both to derive a fresh address and to validate against an existing
// one (spec §3 invariant).
func (p *Pubkey) RipeHash() [20]byte {
	return RipeHash(stripPointPrefix(p.SigningKey), stripPointPrefix(p.EncryptionKey))
}

// Address derives the Address this pubkey belongs to.
func (p *Pubkey) Address() (Address, error) {
	return NewAddress(p.AddressVersion, p.Stream, p.RipeHash())
}

// ValidFor reports whether p is valid for addr: recomputing the ripe-hash
// from its keys plus version/stream must reproduce addr's address string,
// and for version > 2 its signature must verify.
func (p *Pubkey) ValidFor(addr Address) (bool, error) {
	derived, err := p.Address()
	if err != nil {
		return false, err
	}
	if derived.String() != addr.String() {
		return false, nil
	}
	if p.AddressVersion > 2 {
		return p.verifySignature()
	}
	return true, nil
}

// signingPayload is the canonical serialization a pubkey's ECDSA
// signature covers: everything in inner except the signature fields
// themselves.
func (p *Pubkey) signingPayload() []byte {
	buf := append([]byte{}, p.Behaviour[:]...)
	buf = append(buf, stripPointPrefix(p.SigningKey)...)
	buf = append(buf, stripPointPrefix(p.EncryptionKey)...)
	if p.AddressVersion >= 3 {
		buf = PutVarInt(buf, p.NonceTrialsPerByte)
		buf = PutVarInt(buf, p.ExtraBytes)
	}
	return buf
}

func (p *Pubkey) verifySignature() (bool, error) {
	if len(p.Signature) == 0 {
		return false, newErr(KindInvalidPubkey, "pubkey.verifySignature", errString("missing signature"))
	}
	hash := ethcrypto.Keccak256(p.signingPayload())
	sigPub := stripPointPrefix(p.SigningKey)
	ok := ethcrypto.VerifySignature(embedPointPrefix(sigPub), hash, p.Signature[:64])
	return ok, nil
}

// Sign computes and attaches the ECDSA signature for a version>=3 pubkey.
func (p *Pubkey) Sign(priv *ecdsa.PrivateKey) error {
	if p.AddressVersion <= 2 {
		return newErr(KindInvalidParameter, "pubkey.Sign", errString("v<=2 pubkeys are not signed"))
	}
	hash := ethcrypto.Keccak256(p.signingPayload())
	sig, err := ethcrypto.Sign(hash, priv)
	if err != nil {
		return newErr(KindInvalidParameter, "pubkey.Sign", err)
	}
	p.Signature = sig[:64]
	return nil
}

// inner returns the plaintext body encrypted (v4+) or written verbatim
// (v<4) after the framing prefix.
func (p *Pubkey) inner() []byte {
	buf := p.signingPayload()
	if p.AddressVersion >= 3 {
		buf = PutVarInt(buf, uint64(len(p.Signature)))
		buf = append(buf, p.Signature...)
	}
	return buf
}

// Serialize encodes p to wire format. For version>=4 the inner body is
// ENVELOPE_ENCRYPTED using the owning address's derived key (addr must be
// the address this pubkey belongs to). mode controls the time-field
// heuristic (spec §9a).
func (p *Pubkey) Serialize(addr Address, mode TimeFieldMode) ([]byte, error) {
	var buf []byte
	if p.PowDone {
		nb := make([]byte, 8)
		binary.BigEndian.PutUint64(nb, p.Nonce)
		buf = append(buf, nb...)
	}
	buf = EncodeTimeField(buf, p.ExpiresTime, mode)
	buf = PutVarInt(buf, p.AddressVersion)
	buf = PutVarInt(buf, p.Stream)

	if p.AddressVersion >= 4 {
		tag, addrKey, ok := addr.TagAndKey()
		if !ok {
			return nil, newErr(KindInvalidParameter, "pubkey.Serialize", errString("address has no v4 tag"))
		}
		derivedPriv, err := ethcrypto.ToECDSA(addrKey[:])
		if err != nil {
			return nil, newErr(KindInvalidParameter, "pubkey.Serialize", err)
		}
		ciphertext, err := EncryptEnvelope(p.inner(), &derivedPriv.PublicKey)
		if err != nil {
			return nil, err
		}
		buf = append(buf, tag[:]...)
		buf = append(buf, ciphertext...)
		return buf, nil
	}

	buf = append(buf, p.inner()...)
	return buf, nil
}

// ParsePubkey parses a serialized pubkey object. addr must be supplied for
// version>=4 objects (its address-derived key decrypts the envelope);
// pass the zero Address for version<4. It fails with Malformed on a
// truncated or out-of-range wire format.
func ParsePubkey(buf []byte, addr Address, mode TimeFieldMode) (*Pubkey, error) {
	p := &Pubkey{}

	// The pow-nonce prefix is only present once we know whether PoW was
	// done; callers that parse freshly-received wire objects always have
	// it, since every admitted object carries its nonce. Objects built
	// in-process before PoW are serialized only as PoW input and never
	// parsed, so ParsePubkey always expects the 8-byte nonce prefix.
	if len(buf) < 8 {
		return nil, newErr(KindMalformed, "pubkey.ParsePubkey", errTruncated)
	}
	p.Nonce = binary.BigEndian.Uint64(buf[:8])
	p.PowDone = true
	buf = buf[8:]

	t, n, err := DecodeTimeField(buf)
	if err != nil {
		return nil, err
	}
	p.ExpiresTime = t
	buf = buf[n:]

	version, n, err := GetVarInt(buf)
	if err != nil {
		return nil, err
	}
	if err := validateAddressVersion(version); err != nil {
		return nil, err
	}
	p.AddressVersion = version
	buf = buf[n:]

	stream, n, err := GetVarInt(buf)
	if err != nil {
		return nil, err
	}
	if err := validateStream(stream); err != nil {
		return nil, err
	}
	p.Stream = stream
	buf = buf[n:]

	if version >= 4 {
		if len(buf) < 32 {
			return nil, newErr(KindMalformed, "pubkey.ParsePubkey", errTruncated)
		}
		buf = buf[32:] // tag; caller already used it to locate this object
		addrKey, ok := addrKeyOf(addr)
		if !ok {
			return nil, newErr(KindInvalidParameter, "pubkey.ParsePubkey", errString("address required to decrypt v4 pubkey"))
		}
		derivedPriv, err := ethcrypto.ToECDSA(addrKey[:])
		if err != nil {
			return nil, newErr(KindInvalidParameter, "pubkey.ParsePubkey", err)
		}
		plaintext, err := DecryptEnvelope(buf, derivedPriv)
		if err != nil {
			return nil, err
		}
		buf = plaintext
	}

	if len(buf) < 4+64+64 {
		return nil, newErr(KindMalformed, "pubkey.ParsePubkey", errTruncated)
	}
	copy(p.Behaviour[:], buf[:4])
	buf = buf[4:]
	p.SigningKey = embedPointPrefix(buf[:64])
	buf = buf[64:]
	p.EncryptionKey = embedPointPrefix(buf[:64])
	buf = buf[64:]

	if version >= 3 {
		ntpb, n, err := GetVarInt(buf)
		if err != nil {
			return nil, err
		}
		p.NonceTrialsPerByte = ntpb
		buf = buf[n:]

		eb, n, err := GetVarInt(buf)
		if err != nil {
			return nil, err
		}
		p.ExtraBytes = eb
		buf = buf[n:]

		sigLen, n, err := GetVarInt(buf)
		if err != nil {
			return nil, err
		}
		buf = buf[n:]
		if sigLen > uint64(len(buf)) {
			return nil, newErr(KindMalformed, "pubkey.ParsePubkey", errOverflow)
		}
		p.Signature = append([]byte{}, buf[:sigLen]...)
	} else {
		p.NonceTrialsPerByte = DefaultNonceTrialsPerByteV1V2
		p.ExtraBytes = DefaultExtraBytesV1V2
	}

	return p, nil
}

func addrKeyOf(addr Address) ([32]byte, bool) {
	_, key, ok := addr.TagAndKey()
	return key, ok
}
