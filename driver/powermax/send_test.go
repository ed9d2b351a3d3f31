package powermax

import (
	"bytes"
	"testing"
	"time"
)

// decodeFrames splits raw outbound transport bytes back into decoded
// payloads, so tests can assert on what the engine actually wrote.
func decodeFrames(t *testing.T, data []byte) [][]byte {
	t.Helper()
	var frames [][]byte
	d := newFrameDecoder(false)
	d.Feed(data, func(p []byte) {
		frames = append(frames, append([]byte(nil), p...))
	}, func(err error) {
		t.Fatalf("outbound bytes failed to decode: %v", err)
	})
	return frames
}

func countOpcode(frames [][]byte, op opcode) int {
	n := 0
	for _, f := range frames {
		if len(f) > 0 && opcode(f[0]) == op {
			n++
		}
	}
	return n
}

func TestArmAwayPatchesInstallerPIN(t *testing.T) {
	var sink bytes.Buffer
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := New(EngineConfig{}, &sink, clock, NopLogger())
	e.state = stateMonitoring
	e.config.InstallerPIN = "1234"

	if err := e.SendCommand(CommandArmAway); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	frames := decodeFrames(t, sink.Bytes())
	if len(frames) != 1 {
		t.Fatalf("wrote %d frames, want 1", len(frames))
	}
	f := frames[0]
	if len(f) < 6 {
		t.Fatalf("arm frame too short: %#x", f)
	}
	if f[defaultPINOffset] != 0x12 || f[defaultPINOffset+1] != 0x34 {
		t.Errorf("PIN bytes = %#02x %#02x at offset %d, want 0x12 0x34",
			f[defaultPINOffset], f[defaultPINOffset+1], defaultPINOffset)
	}
}

func TestEnrollReplyPatchesPowerLinkPIN(t *testing.T) {
	var sink bytes.Buffer
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := New(EngineConfig{}, &sink, clock, NopLogger())

	if err := e.SendCommand(CommandEnrollReply); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	frames := decodeFrames(t, sink.Bytes())
	if len(frames) != 1 {
		t.Fatalf("wrote %d frames, want 1", len(frames))
	}
	f := frames[0]
	// The default PowerLink PIN 3622 packs to 0x36 0x22, big-endian
	// into the template's PIN slot.
	if f[1] != 0x36 || f[2] != 0x22 {
		t.Errorf("enroll PIN bytes = %#02x %#02x, want 0x36 0x22", f[1], f[2])
	}
}

func TestAtMostOneCommandInFlight(t *testing.T) {
	var sink bytes.Buffer
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := New(EngineConfig{}, &sink, clock, NopLogger())
	e.state = stateMonitoring

	for i := 0; i < 3; i++ {
		if err := e.SendCommand(CommandReqStatus); err != nil {
			t.Fatalf("SendCommand %d: %v", i, err)
		}
	}
	clock.advance(time.Millisecond)
	e.Tick()
	frames := decodeFrames(t, sink.Bytes())
	if got := countOpcode(frames, 0xa2); got != 1 {
		t.Fatalf("wrote %d status requests before any reply, want 1", got)
	}

	// The expected reply resolves the in-flight command; the next
	// queued one goes out on the following tick.
	e.FeedPacket([]byte{byte(opStatusUpdatePanel), byte(StatusReady), 0x00})
	clock.advance(time.Millisecond)
	e.Tick()
	frames = decodeFrames(t, sink.Bytes())
	if got := countOpcode(frames, 0xa2); got != 2 {
		t.Errorf("wrote %d status requests after one reply, want 2", got)
	}
}

func TestTimeoutResendsSameBytes(t *testing.T) {
	var sink bytes.Buffer
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := New(EngineConfig{PacketTimeout: 10 * time.Millisecond}, &sink, clock, NopLogger())
	e.state = stateMonitoring

	if err := e.SendCommand(CommandReqStatus); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	clock.advance(20 * time.Millisecond)
	e.Tick()

	frame := encodeFrame(commandTemplates[CommandReqStatus].bytes)
	if got := bytes.Count(sink.Bytes(), frame); got != 2 {
		t.Errorf("status request frame written %d times after one timeout, want 2", got)
	}
}

func TestBCDPIN(t *testing.T) {
	hi, lo := bcdPIN(3622)
	if hi != 0x36 || lo != 0x22 {
		t.Errorf("bcdPIN(3622) = %#02x %#02x, want 0x36 0x22", hi, lo)
	}
	hi, lo = bcdPIN(1234)
	if hi != 0x12 || lo != 0x34 {
		t.Errorf("bcdPIN(1234) = %#02x %#02x, want 0x12 0x34", hi, lo)
	}
}
