// pow.go – the proof-of-work engine (spec §4.1 / §2 component 3). The
// target formula must be bit-compatible with the reference network, so the
// divisor is computed with math/big to avoid the 64-bit overflow a naive
// uint64 product would hit, then folded back into a signed int64 the same
// way the reference ecosystem stores it.
package core

import (
	"context"
	"crypto/sha512"
	"encoding/binary"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// MinimumTTLSeconds is the floor TTL used for the target formula whenever a
// candidate object is about to expire too soon to be worth cheap PoW.
const MinimumTTLSeconds int64 = 300

// EffectiveTTL returns max(expirationTime-now, MinimumTTLSeconds), the
// clamp spec §4.1 requires of both DoPOW and CheckPOW.
func EffectiveTTL(expirationTime, now int64) int64 {
	ttl := expirationTime - now
	if ttl < MinimumTTLSeconds {
		return MinimumTTLSeconds
	}
	return ttl
}

// Target computes the 64-bit PoW target for a payload of length
// payloadLen, given nonceTrialsPerByte, extraBytes and an already-clamped
// ttlSeconds. It returns InvalidParameter if either trials-per-byte or
// extra-bytes rate is zero (a zero divisor).
func Target(payloadLen int, nonceTrialsPerByte, extraBytes uint64, ttlSeconds int64) (int64, error) {
	if nonceTrialsPerByte == 0 || extraBytes == 0 {
		return 0, newErr(KindInvalidParameter, "pow.Target", errString("nonceTrialsPerByte and extraBytes must be non-zero"))
	}
	if ttlSeconds < 0 {
		ttlSeconds = MinimumTTLSeconds
	}

	lenPlusExtra := big.NewInt(int64(payloadLen) + int64(extraBytes))
	ntpb := new(big.Int).SetUint64(nonceTrialsPerByte)
	ttl := big.NewInt(ttlSeconds)
	shift16 := big.NewInt(1 << 16)

	base := new(big.Int).Mul(lenPlusExtra, ntpb)
	timeTerm := new(big.Int).Mul(base, ttl)
	timeTerm.Div(timeTerm, shift16)

	divisor := new(big.Int).Add(base, timeTerm)
	if divisor.Sign() <= 0 {
		return 0, newErr(KindInvalidParameter, "pow.Target", errString("degenerate divisor"))
	}

	maxU64 := new(big.Int).Lsh(big.NewInt(1), 64)
	targetBig := new(big.Int).Div(maxU64, divisor)

	return int64(targetBig.Uint64()), nil
}

// powHeaderHash returns SHA-512(payload), the value hashed against each
// nonce candidate.
func powHeaderHash(payload []byte) [64]byte {
	return sha512.Sum512(payload)
}

// trialValue computes the signed comparison value v for a candidate nonce:
// the first 8 bytes, big-endian, of double-SHA-512(nonce_be ‖ header).
func trialValue(nonce uint64, header [64]byte) int64 {
	var buf [72]byte
	binary.BigEndian.PutUint64(buf[:8], nonce)
	copy(buf[8:], header[:])
	first := sha512.Sum512(buf[:])
	second := sha512.Sum512(first[:])
	return int64(binary.BigEndian.Uint64(second[:8]))
}

// DoPOW searches for a 64-bit nonce n such that trialValue(n, H) is in
// [0, target], H = SHA-512(payload). The search fans out across
// runtime.GOMAXPROCS(0) workers (or workers, if >0) over disjoint nonce
// ranges (worker w tries w, w+workers, w+2*workers, ...) and returns the
// first winner any worker reports; with more than one worker that is not
// necessarily the smallest satisfying nonce. All workers stop cooperatively
// as soon as one finds a winner or ctx is cancelled.
func DoPOW(ctx context.Context, payload []byte, expirationTime, now int64, nonceTrialsPerByte, extraBytes uint64, workers int) (uint64, error) {
	ttl := EffectiveTTL(expirationTime, now)
	target, err := Target(len(payload), nonceTrialsPerByte, extraBytes, ttl)
	if err != nil {
		return 0, err
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	header := powHeaderHash(payload)

	log.WithFields(log.Fields{"target": target, "workers": workers, "payload_len": len(payload)}).
		Debug("pow: starting nonce search")

	type result struct {
		nonce uint64
		ok    bool
	}

	found := make(chan result, workers)
	var stop atomic.Bool
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(start uint64, stride uint64) {
			defer wg.Done()
			const batch = 10000
			var i uint64
			for n := start; ; n += stride {
				if i%batch == 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
					if stop.Load() {
						return
					}
				}
				i++
				v := trialValue(n, header)
				if v >= 0 && v <= target {
					if stop.CompareAndSwap(false, true) {
						found <- result{nonce: n, ok: true}
					}
					return
				}
			}
		}(uint64(w), uint64(workers))
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if ok && r.ok {
			log.WithField("nonce", r.nonce).Debug("pow: nonce found")
			return r.nonce, nil
		}
		return 0, newErr(KindCancelled, "pow.DoPOW", nil)
	case <-ctx.Done():
		stop.Store(true)
		return 0, newErr(KindCancelled, "pow.DoPOW", ctx.Err())
	}
}

// CheckPOW verifies that nonce satisfies the PoW target for payload given
// the object's expiration time and trial parameters. It fails with
// Malformed if payload is too short to be a valid object header.
func CheckPOW(payload []byte, nonce uint64, expirationTime, now int64, nonceTrialsPerByte, extraBytes uint64) (bool, error) {
	const minObjectHeaderLen = 6 // time(>=4) + version-varint + stream-varint, minimally
	if len(payload) < minObjectHeaderLen {
		return false, newErr(KindMalformed, "pow.CheckPOW", errString("payload shorter than object header"))
	}

	ttl := EffectiveTTL(expirationTime, now)
	target, err := Target(len(payload), nonceTrialsPerByte, extraBytes, ttl)
	if err != nil {
		return false, err
	}

	header := powHeaderHash(payload)
	v := trialValue(nonce, header)
	ok := v >= 0 && v <= target
	if !ok {
		return false, newErr(KindPoWInsufficient, "pow.CheckPOW", nil)
	}
	return true, nil
}
