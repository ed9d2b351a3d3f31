package powermax

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{byte(opStatusUpdatePanel), 0x05}
	frame := encodeFrame(payload)

	var got [][]byte
	d := newFrameDecoder(false)
	d.Feed(frame, func(p []byte) {
		got = append(got, append([]byte(nil), p...))
	}, func(err error) {
		t.Errorf("unexpected framing error: %v", err)
	})
	if len(got) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(got))
	}
	if !bytes.Equal(got[0], payload) {
		t.Errorf("decoded payload = %#x, want %#x", got[0], payload)
	}
}

func TestFrameEscaping(t *testing.T) {
	payload := []byte{preambleByte, escapeByte, 0x01}
	frame := encodeFrame(payload)

	var got []byte
	d := newFrameDecoder(false)
	d.Feed(frame, func(p []byte) { got = append([]byte(nil), p...) }, nil)
	if !bytes.Equal(got, payload) {
		t.Errorf("decoded payload = %#x, want %#x", got, payload)
	}
}

// TestFrameRoundTripArbitraryPayloads drives encode/decode over the
// whole legal payload length range with deterministic pseudo-random
// contents.
func TestFrameRoundTripArbitraryPayloads(t *testing.T) {
	seed := uint32(0x12345678)
	next := func() byte {
		seed = seed*1664525 + 1013904223
		return byte(seed >> 24)
	}
	for length := 1; length <= 247; length += 7 {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = next()
		}
		frame := encodeFrame(payload)

		var got []byte
		d := newFrameDecoder(true)
		d.Feed(frame, func(p []byte) {
			got = append([]byte(nil), p...)
		}, func(err error) {
			t.Fatalf("len %d: decode error: %v", length, err)
		})
		if !bytes.Equal(got, payload) {
			t.Fatalf("len %d: decoded %#x, want %#x", length, got, payload)
		}
	}
}

// TestFrameSingleByteCorruptionRejected flips every non-delimiter byte
// of a valid frame in turn and expects the strict decoder to reject
// each mutation. The payload is chosen so no mutated byte collides
// with the preamble, trailer, or escape byte, keeping the frame
// structure itself intact.
func TestFrameSingleByteCorruptionRejected(t *testing.T) {
	payload := []byte{0x20, 0x31, 0x52, 0x66, 0x70}
	frame := encodeFrame(payload)

	for i := 1; i < len(frame)-1; i++ {
		mutated := append([]byte(nil), frame...)
		mutated[i] ^= 0xff

		gotFrame := false
		d := newFrameDecoder(true)
		d.Feed(mutated, func(p []byte) { gotFrame = true }, nil)
		if gotFrame {
			t.Errorf("decoder accepted frame with byte %d corrupted", i)
		}
	}
}

func TestFrameChecksumRejected(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	frame := encodeFrame(payload)
	// Corrupt the checksum byte (second to last, before the trailer).
	frame[len(frame)-2] ^= 0xff

	var gotErr error
	var gotFrame bool
	d := newFrameDecoder(true)
	d.Feed(frame, func(p []byte) { gotFrame = true }, func(err error) { gotErr = err })
	if gotFrame {
		t.Error("decoder accepted a corrupted checksum in strict mode")
	}
	if gotErr != errChecksum {
		t.Errorf("error = %v, want errChecksum", gotErr)
	}
}

func TestFrameChecksumToleratesOffByOneUnlessStrict(t *testing.T) {
	payload := []byte{0x07, 0x08}
	sum := checksum(payload)

	if !checksumOK(payload, sum+1, false) {
		t.Error("lenient mode rejected a +1 checksum")
	}
	if !checksumOK(payload, sum-1, false) {
		t.Error("lenient mode rejected a -1 checksum")
	}
	if checksumOK(payload, sum+1, true) {
		t.Error("strict mode accepted a +1 checksum")
	}
}

func TestCalculateAckType(t *testing.T) {
	cases := []struct {
		op   opcode
		want ackKind
	}{
		{opPing, ack1},
		{opAccessDenied, ack1},
		{opPanelInfo, ack2},
		{opDownloadInfo, ack2},
		{opDownloadSettings, ack2},
	}
	for _, c := range cases {
		if got := calculateAckType([]byte{byte(c.op)}); got != c.want {
			t.Errorf("calculateAckType(%#02x) = %v, want %v", c.op, got, c.want)
		}
	}
}
