// codec.go – var-int and fixed-width integer encoding over byte streams,
// byte-exact with the reference wire format (spec §4.2).
package core

import "encoding/binary"

// PutVarInt appends the var-int encoding of v to buf and returns the
// extended slice.
//
//	v <  0xFD             -> one byte
//	v <  1<<16             -> 0xFD + u16-be
//	v <  1<<32             -> 0xFE + u32-be
//	otherwise              -> 0xFF + u64-be
func PutVarInt(buf []byte, v uint64) []byte {
	switch {
	case v < 0xFD:
		return append(buf, byte(v))
	case v < 1<<16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v))
		return append(append(buf, 0xFD), b...)
	case v < 1<<32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v))
		return append(append(buf, 0xFE), b...)
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, v)
		return append(append(buf, 0xFF), b...)
	}
}

// VarIntLen returns the number of bytes PutVarInt would emit for v.
func VarIntLen(v uint64) int {
	switch {
	case v < 0xFD:
		return 1
	case v < 1<<16:
		return 3
	case v < 1<<32:
		return 5
	default:
		return 9
	}
}

// GetVarInt decodes a var-int prefix of buf, returning the value and the
// number of bytes consumed. It fails with KindMalformed (wrapping a
// Truncated cause) if fewer bytes remain than the prefix demands.
func GetVarInt(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, newErr(KindMalformed, "codec.GetVarInt", errTruncated)
	}
	switch b0 := buf[0]; {
	case b0 < 0xFD:
		return uint64(b0), 1, nil
	case b0 == 0xFD:
		if len(buf) < 3 {
			return 0, 0, newErr(KindMalformed, "codec.GetVarInt", errTruncated)
		}
		return uint64(binary.BigEndian.Uint16(buf[1:3])), 3, nil
	case b0 == 0xFE:
		if len(buf) < 5 {
			return 0, 0, newErr(KindMalformed, "codec.GetVarInt", errTruncated)
		}
		return uint64(binary.BigEndian.Uint32(buf[1:5])), 5, nil
	default: // 0xFF
		if len(buf) < 9 {
			return 0, 0, newErr(KindMalformed, "codec.GetVarInt", errTruncated)
		}
		return binary.BigEndian.Uint64(buf[1:9]), 9, nil
	}
}

// GetVarIntBounded decodes a var-int and validates it falls within
// [lo, hi]; used for the version/stream/sig-len validation ranges named in
// spec §4.2 and §4.4. It fails with KindMalformed (Overflow cause) when the
// decoded value exceeds hi.
func GetVarIntBounded(buf []byte, lo, hi uint64) (uint64, int, error) {
	v, n, err := GetVarInt(buf)
	if err != nil {
		return 0, 0, err
	}
	if v < lo || v > hi {
		return 0, 0, newErr(KindMalformed, "codec.GetVarIntBounded", errOverflow)
	}
	return v, n, nil
}

var (
	errTruncated = errString("truncated")
	errOverflow  = errString("overflow")
)

type errString string

func (e errString) Error() string { return string(e) }
