// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomFrame encodes a random valid BUTTON_EVENT
func randomFrame(t *testing.T, rng *rand.Rand) ([]byte, dimmer.WirePayload, uint32, uint64) {
	t.Helper()
	payload := dimmer.BuildWirePayload(
		dimmer.ButtonID(rng.Intn(dimmer.NumButtons)),
		dimmer.TransitionKind(rng.Intn(4)),
		uint8(rng.Intn(256)),
	)
	seq := rng.Uint32()
	address := rng.Uint64()
	data, err := NewEncoder(address).ButtonEvent(payload, seq)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data, payload, seq, address
}

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't panic
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(512)+1)
		rng.Read(data)

		frames, _ := NewDecoder().Decode(data)
		for _, f := range frames {
			_ = FormatFrame(f)
		}
	}
}

// TestFuzzDecoder_RandomFrames round trips random button events
func TestFuzzDecoder_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	d := NewDecoder()

	for i := 0; i < rounds; i++ {
		data, payload, seq, address := randomFrame(t, rng)

		frames, errs := d.Decode(data)
		if len(errs) != 0 || len(frames) != 1 {
			t.Fatalf("Round %d: expected 1 frame, got %d frames, errors %v", i, len(frames), errs)
		}
		f := frames[0]
		if f.Address() != address {
			t.Errorf("Round %d: address mismatch: expected 0x%016X, got 0x%016X", i, address, f.Address())
		}
		gotPayload, gotSeq, err := f.ButtonEvent()
		if err != nil || gotPayload != payload || gotSeq != seq {
			t.Errorf("Round %d: expected %s/%d, got %s/%d (%v)", i, payload, seq, gotPayload, gotSeq, err)
		}
	}
}

// TestFuzzDecoder_CorruptedFrames flips one byte inside a frame and checks
// the corrupt frame is never delivered as a different valid event
func TestFuzzDecoder_CorruptedFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		data, payload, seq, _ := randomFrame(t, rng)

		idx := rng.Intn(len(data)-2) + 1 // skip START and END
		data[idx] ^= byte(rng.Intn(255) + 1)

		frames, _ := NewDecoder().Decode(data)
		for _, f := range frames {
			p, s, err := f.ButtonEvent()
			if err == nil && (p != payload || s != seq) {
				t.Fatalf("Round %d: corruption at %d produced a different event %s/%d", i, idx, p, s)
			}
		}
	}
}

// TestFuzzDecoder_Resync interleaves garbage with valid frames and checks
// every frame is recovered
func TestFuzzDecoder_Resync(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	d := NewDecoder()

	for i := 0; i < rounds; i++ {
		garbage := make([]byte, rng.Intn(32))
		rng.Read(garbage)
		data, payload, _, _ := randomFrame(t, rng)

		frames, _ := d.Decode(append(garbage, data...))
		if len(frames) == 0 {
			t.Fatalf("Round %d: frame lost after %d garbage bytes", i, len(garbage))
		}
		last := frames[len(frames)-1]
		if p, _, err := last.ButtonEvent(); err != nil || p != payload {
			t.Fatalf("Round %d: expected %s, got %s (%v)", i, payload, p, err)
		}
	}
}
