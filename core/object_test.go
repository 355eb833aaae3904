package core

import "testing"

// TestDecodeTimeFieldQuirk exercises the literal byte patterns spec §8's
// codec-quirk scenario names: a time field whose leading 4 bytes are all
// zero must be read as the following 8 bytes, while a time field whose
// leading 4 bytes are non-zero must be read as just those 4 bytes — even
// though both patterns appear in the same position of the wire object.
func TestDecodeTimeFieldQuirk(t *testing.T) {
	t.Run("leading zero dword forces 8-byte read", func(t *testing.T) {
		// 0x0000000061A00000 as an 8-byte field: leading dword all zero.
		buf := []byte{0x00, 0x00, 0x00, 0x00, 0x61, 0xA0, 0x00, 0x00}
		got, consumed, err := DecodeTimeField(buf)
		if err != nil {
			t.Fatalf("DecodeTimeField: %v", err)
		}
		if consumed != 8 {
			t.Errorf("expected 8 bytes consumed, got %d", consumed)
		}
		if want := int64(0x61A00000); got != want {
			t.Errorf("expected decoded value %d, got %d", want, got)
		}
	})

	t.Run("non-zero leading dword reads as 4 bytes", func(t *testing.T) {
		buf := []byte{0x61, 0xA0, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
		got, consumed, err := DecodeTimeField(buf)
		if err != nil {
			t.Fatalf("DecodeTimeField: %v", err)
		}
		if consumed != 4 {
			t.Errorf("expected 4 bytes consumed, got %d", consumed)
		}
		if want := int64(0x61A00000); got != want {
			t.Errorf("expected decoded value %d, got %d", want, got)
		}
	})
}

// TestEncodeTimeFieldRoundTripsThroughDecode checks that whichever width
// EncodeTimeField chooses, DecodeTimeField recovers the original value —
// for values whose high-order 32 bits are zero. DecodeTimeField's
// leading-zero heuristic (spec §9 open question a) cannot distinguish an
// 8-byte field from a 4-byte one once the value needs more than 32 bits to
// represent, which is this codec's documented, inherent fragility rather
// than a bug to round-trip around.
func TestEncodeTimeFieldRoundTripsThroughDecode(t *testing.T) {
	cases := []struct {
		name string
		t    int64
		mode TimeFieldMode
	}{
		{"small value, auto", 0x61A00000, TimeFieldAuto},
		{"zero value, auto (forces 8-byte field)", 0, TimeFieldAuto},
		{"small value, strict8", 12345, TimeFieldStrict8},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := EncodeTimeField(nil, c.t, c.mode)
			got, consumed, err := DecodeTimeField(buf)
			if err != nil {
				t.Fatalf("DecodeTimeField: %v", err)
			}
			if consumed != len(buf) {
				t.Errorf("expected to consume the entire encoded field, consumed %d of %d", consumed, len(buf))
			}
			if got != c.t {
				t.Errorf("round trip mismatch: got %d want %d", got, c.t)
			}
		})
	}
}

func TestValidateAddressVersionAndStream(t *testing.T) {
	for _, v := range []uint64{1, 2, 3, 4} {
		if err := validateAddressVersion(v); err != nil {
			t.Errorf("version %d should be valid: %v", v, err)
		}
	}
	for _, v := range []uint64{0, 5, 100} {
		if err := validateAddressVersion(v); err == nil {
			t.Errorf("version %d should be rejected", v)
		}
	}

	if err := validateStream(1); err != nil {
		t.Errorf("stream 1 should be valid: %v", err)
	}
	if err := validateStream(2); err == nil {
		t.Errorf("stream 2 should be rejected")
	}
}
