// object.go – framing shared by pubkey and msg objects: the pow-nonce
// prefix, the 4-vs-8-byte time-field quirk (spec §4.4, §9 open question a),
// and the address-version/stream validation ranges.
package core

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
)

// DefaultNonceTrialsPerByteV1V2 and DefaultExtraBytesV1V2 are the fixed
// defaults the reference ecosystem uses for address versions below 3.
// Later protocol revisions set both to zero for v<3; spec §9(c) keeps the
// source's numbers and flags the discrepancy rather than silently
// "fixing" it.
const (
	DefaultNonceTrialsPerByteV1V2 uint64 = 320
	DefaultExtraBytesV1V2         uint64 = 14000
)

// TimeFieldMode selects how the ambiguous 4-vs-8-byte time field is
// written. Auto reproduces the reference ecosystem's heuristic (and its
// known fragility); Strict8 always emits 8 bytes. The mode affects writing
// only: DecodeTimeField, ParsePubkey and DecodeMsgObject apply the
// leading-zero heuristic whatever mode they are given, so an 8-byte field
// whose upper dword is non-zero is read back as a 4-byte field in either
// mode.
type TimeFieldMode int

const (
	TimeFieldAuto TimeFieldMode = iota
	TimeFieldStrict8
)

// EncodeTimeField appends the object time field to buf per mode.
func EncodeTimeField(buf []byte, t int64, mode TimeFieldMode) []byte {
	if mode == TimeFieldStrict8 || t <= 0 || t > 0xFFFFFFFF {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(t))
		return append(buf, b...)
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(t))
	return append(buf, b...)
}

// DecodeTimeField decodes the object time field from the front of buf,
// disambiguating 4-vs-8 bytes solely by whether the first 4 bytes are
// zero (spec §4.4). This is a known wire-level quirk: a real 8-byte time
// whose upper dword happens to be zero is indistinguishable from a 4-byte
// field's leading zero byte only when the value itself is exactly zero,
// but a genuine future 8-byte time with a non-zero low dword and zero high
// dword parses correctly either way because the heuristic always prefers
// the 8-byte interpretation whenever the first dword is all zero.
func DecodeTimeField(buf []byte) (t int64, consumed int, err error) {
	if len(buf) < 4 {
		return 0, 0, newErr(KindMalformed, "object.DecodeTimeField", errTruncated)
	}
	if binary.BigEndian.Uint32(buf[:4]) == 0 {
		if len(buf) < 8 {
			return 0, 0, newErr(KindMalformed, "object.DecodeTimeField", errTruncated)
		}
		v := binary.BigEndian.Uint64(buf[:8])
		log.WithField("raw", v).Debug("object: time field decoded as 8 bytes (leading dword zero)")
		return int64(v), 8, nil
	}
	v := binary.BigEndian.Uint32(buf[:4])
	return int64(v), 4, nil
}

// validateAddressVersion and validateStream enforce the var-int
// validation ranges named in spec §4.4.
func validateAddressVersion(v uint64) error {
	if v < 1 || v > 4 {
		return newErr(KindMalformed, "object.validateAddressVersion", errOverflow)
	}
	return nil
}

func validateStream(v uint64) error {
	if v != 1 {
		return newErr(KindMalformed, "object.validateStream", errOverflow)
	}
	return nil
}

// stripPointPrefix removes the leading 0x04 uncompressed-point marker for
// wire serialization; embedPointPrefix reinserts it on parse.
func stripPointPrefix(pub []byte) []byte {
	if len(pub) == uncompressedPointLen && pub[0] == 0x04 {
		return pub[1:]
	}
	return pub
}

func embedPointPrefix(raw []byte) []byte {
	out := make([]byte, 0, uncompressedPointLen)
	out = append(out, 0x04)
	out = append(out, raw...)
	return out
}
