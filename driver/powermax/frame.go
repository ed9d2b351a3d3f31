package powermax

import "errors"

// Wire protocol constants, fixed by the PowerLink protocol (spec.md
// §6). preambleByte and trailerByte bracket every frame; escapeByte
// byte-stuffs any payload occurrence of the delimiters or of itself.
const (
	preambleByte = 0x0d
	trailerByte  = 0x0a
	escapeByte   = 0x43

	// escapeXOR is applied to an escaped byte's value, HDLC-style,
	// so the escape sequence is never itself ambiguous with a raw
	// preamble/escape byte.
	escapeXOR = 0x20

	// maxFrameLen is the maximum decoded payload length (MAX_BUFFER_SIZE).
	maxFrameLen = 250
	// maxCommandLen is the maximum length of an outbound command
	// template or queued command (MAX_SEND_BUFFER_SIZE).
	maxCommandLen = 15
)

// ackKind is the acknowledgement framing the panel expects for the
// message class of the frame just received.
type ackKind int

const (
	ack1 ackKind = iota
	ack2
)

var (
	errFraming  = errors.New("powermax: framing error")
	errChecksum = errors.New("powermax: checksum error")
)

// isBufferOK reports whether buf is a non-empty decoded payload within
// the protocol's maximum frame length. Checksum validation already
// happened in the frame decoder (or, for a caller supplying its own
// framing layer, is the caller's responsibility); this only re-checks
// the length bound feed_packet itself is documented to enforce
// (spec.md §3, §4.9).
func isBufferOK(buf []byte) bool {
	return len(buf) >= 1 && len(buf) <= maxFrameLen
}

// checksum computes the additive 8-bit checksum byte for payload: the
// two's-complement of the sum of its bytes, modulo 256.
func checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return byte(-int8(sum))
}

// checksumOK reports whether got is an acceptable checksum for
// payload, accepting the documented panel quirk of got being exactly
// the computed value, or that value ±1, unless strict is set.
func checksumOK(payload []byte, got byte, strict bool) bool {
	want := checksum(payload)
	if got == want {
		return true
	}
	if strict {
		return false
	}
	return got == want+1 || got == want-1
}

// encodeFrame brackets payload (opcode + parameters) with the
// preamble and trailer, appends the checksum, and escapes any payload
// or checksum byte that collides with one of the delimiter bytes.
func encodeFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, preambleByte)
	out = appendEscaped(out, payload)
	out = appendEscaped(out, []byte{checksum(payload)})
	out = append(out, trailerByte)
	return out
}

func appendEscaped(dst, src []byte) []byte {
	for _, b := range src {
		switch b {
		case preambleByte, trailerByte, escapeByte:
			dst = append(dst, escapeByte, b^escapeXOR)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// frameDecoder assembles frames out of a byte stream delimited by
// preambleByte/trailerByte, unescaping as it goes. It is a feeder:
// callers push bytes in with Feed and receive completed, validated
// payloads (without preamble/trailer/checksum) via the callback.
type frameDecoder struct {
	buf      []byte
	escaping bool
	inFrame  bool
	strict   bool
}

func newFrameDecoder(strict bool) *frameDecoder {
	return &frameDecoder{strict: strict}
}

// Feed processes data byte by byte, invoking onFrame for each
// complete, checksum-valid payload, and onError for each framing or
// checksum failure (after which the decoder discards bytes up to the
// next preamble, per spec.md §7).
func (d *frameDecoder) Feed(data []byte, onFrame func(payload []byte), onError func(err error)) {
	for _, b := range data {
		switch {
		case b == preambleByte && !d.escaping:
			d.inFrame = true
			d.buf = d.buf[:0]
			continue
		case !d.inFrame:
			continue
		case b == trailerByte && !d.escaping:
			d.inFrame = false
			payload, ok := d.finish()
			if !ok {
				if onError != nil {
					onError(errChecksum)
				}
				continue
			}
			if onFrame != nil {
				onFrame(payload)
			}
			continue
		case b == escapeByte && !d.escaping:
			d.escaping = true
			continue
		}
		if d.escaping {
			b ^= escapeXOR
			d.escaping = false
		}
		if len(d.buf) >= maxFrameLen+1 {
			d.inFrame = false
			if onError != nil {
				onError(errFraming)
			}
			continue
		}
		d.buf = append(d.buf, b)
	}
}

// finish validates and strips the checksum byte off the accumulated
// buffer, returning the payload and whether it passed validation.
func (d *frameDecoder) finish() (payload []byte, ok bool) {
	if len(d.buf) < 1 {
		return nil, false
	}
	payload, sum := d.buf[:len(d.buf)-1], d.buf[len(d.buf)-1]
	if len(payload) < 1 || len(payload) > maxFrameLen {
		return nil, false
	}
	if !checksumOK(payload, sum, d.strict) {
		return nil, false
	}
	return payload, true
}

// calculateAckType inspects the message-type-specific fields of a
// decoded payload and reports which acknowledgement framing the panel
// expects for it. Download-phase messages (PanelInfo, DownloadInfo,
// DownloadSettings) use ACK2; all other message classes, the status
// family included, use the short ACK1.
func calculateAckType(payload []byte) ackKind {
	if len(payload) < 1 {
		return ack1
	}
	switch opcode(payload[0]) {
	case opPanelInfo, opDownloadInfo, opDownloadSettings:
		return ack2
	default:
		return ack1
	}
}

// ackFrame returns the wire bytes for the acknowledgement matching
// kind.
func ackFrame(kind ackKind) []byte {
	switch kind {
	case ack2:
		return encodeFrame([]byte{byte(opAck), 0x02})
	default:
		return encodeFrame([]byte{byte(opAck)})
	}
}
