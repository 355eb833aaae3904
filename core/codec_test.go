package core

import "testing"

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xFC, 0xFD, 0xFFFF, 0x10000, 0xFFFFFFFF, 0x100000000, 1<<64 - 1}
	for _, v := range cases {
		buf := PutVarInt(nil, v)
		if len(buf) != VarIntLen(v) {
			t.Fatalf("VarIntLen(%d)=%d but PutVarInt wrote %d bytes", v, VarIntLen(v), len(buf))
		}
		got, n, err := GetVarInt(buf)
		if err != nil {
			t.Fatalf("GetVarInt(%d): %v", v, err)
		}
		if n != len(buf) {
			t.Fatalf("GetVarInt(%d) consumed %d, want %d", v, n, len(buf))
		}
		if got != v {
			t.Fatalf("round trip mismatch: got %d want %d", got, v)
		}
	}
}

func TestVarIntPrefixWidths(t *testing.T) {
	cases := []struct {
		v    uint64
		want byte
		n    int
	}{
		{0, 0x00, 1},
		{0xFC, 0xFC, 1},
		{0xFD, 0xFD, 3},
		{0xFFFF, 0xFD, 3},
		{0x10000, 0xFE, 5},
		{0xFFFFFFFF, 0xFE, 5},
		{0x100000000, 0xFF, 9},
	}
	for _, tc := range cases {
		buf := PutVarInt(nil, tc.v)
		if buf[0] != tc.want || len(buf) != tc.n {
			t.Errorf("PutVarInt(%d) = % x, want prefix %02x len %d", tc.v, buf, tc.want, tc.n)
		}
	}
}

func TestGetVarIntTruncated(t *testing.T) {
	cases := [][]byte{{}, {0xFD}, {0xFD, 0x01}, {0xFE, 0x01, 0x02}, {0xFF, 0x01, 0x02, 0x03}}
	for _, buf := range cases {
		if _, _, err := GetVarInt(buf); err == nil {
			t.Errorf("GetVarInt(% x) should have failed on truncated input", buf)
		}
	}
}

func TestGetVarIntBoundedRejectsOutOfRange(t *testing.T) {
	buf := PutVarInt(nil, 5)
	if _, _, err := GetVarIntBounded(buf, 1, 4); err == nil {
		t.Fatalf("expected out-of-range value to be rejected")
	}
	if _, _, err := GetVarIntBounded(buf, 5, 5); err != nil {
		t.Fatalf("expected in-range value to be accepted: %v", err)
	}
}
