package powermax

import "sync"

// Simulator is an in-memory Transport that plays the panel side of
// the PowerLink handshake well enough to drive an Engine through
// enrolment, download, and into monitoring without real hardware. It
// mirrors driver/mjolnir's Simulator, adapted from MarkingWay's raw
// command stream to PowerLink framing.
type Simulator struct {
	mu      sync.Mutex
	outbox  []byte
	decoder *frameDecoder

	zoneData [(maxZoneCount - 1) * zoneNameStride]byte
}

// NewSimulator returns a Simulator that immediately has an unsolicited
// ENROLL frame queued up for the engine to read, the way a freshly
// powered panel announces itself to a connecting PowerLink accessory.
func NewSimulator() *Simulator {
	s := &Simulator{decoder: newFrameDecoder(false)}
	for i := range s.zoneData {
		s.zoneData[i] = ' '
	}
	copy(s.zoneData[:], "Front Door")
	s.pushFrame([]byte{byte(opEnroll)})
	return s
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.outbox)
	s.outbox = s.outbox[n:]
	return n, nil
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoder.Feed(p, s.handleFrame, func(error) {})
	return len(p), nil
}

func (s *Simulator) pushFrame(payload []byte) {
	s.outbox = append(s.outbox, encodeFrame(payload)...)
}

// handleFrame plays out the fixed reply the simulated panel gives for
// each command the engine is expected to send, in the order the C6
// state machine sends them.
func (s *Simulator) handleFrame(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch opcode(payload[0]) {
	case opAck: // the host acking a message we sent; no reply of our own
	case opEnroll: // CommandEnrollReply
		s.pushFrame([]byte{byte(opAck)})
		s.pushFrame([]byte{byte(opPanelInfo), 0x01, 0x0a, 0x00})
	case opDownloadInfo: // CommandDLStart
		s.pushFrame([]byte{byte(opAck), 0x02})
		s.pushFrame([]byte{byte(opDownloadInfo), 0x00})
	case opDownloadSettings: // CommandDLGet
		if len(payload) < 4 {
			return
		}
		page, offset, length := payload[1], payload[2], int(payload[3])
		data := s.rangeData(page, offset, length)
		reply := append([]byte{byte(opDownloadSettings), page, offset}, data...)
		s.pushFrame([]byte{byte(opAck), 0x02})
		s.pushFrame(reply)
	case 0x35: // CommandDLExit
		s.pushFrame([]byte{byte(opAck)})
	case 0xa2: // CommandReqStatus
		s.pushFrame([]byte{byte(opAck)})
		s.pushFrame([]byte{byte(opStatusUpdatePanel), byte(StatusReady), 0x00})
	case 0x3d: // CommandRestore
		s.pushFrame([]byte{byte(opAck)})
	case 0x0a: // arm/disarm family
		s.pushFrame([]byte{byte(opAck)})
		s.pushFrame([]byte{byte(opStatusUpdatePanel), payload[1], 1 << 6})
	default:
		s.pushFrame([]byte{byte(opAck)})
	}
}

// rangeData returns the simulated EEPROM bytes for the given range:
// the zone-name table if the range falls within its two pages, the
// zone-definition records (zone 1 an enrolled magnet contact) on the
// zone-definition page, or an incrementing filler pattern otherwise.
func (s *Simulator) rangeData(page, offset byte, length int) []byte {
	if page == zoneNamePage || page == zoneNamePage+1 {
		addr := (int(page)-zoneNamePage)*256 + int(offset)
		if addr+length <= len(s.zoneData) {
			return append([]byte(nil), s.zoneData[addr:addr+length]...)
		}
	}
	if page == zoneDefPage {
		// One enrolled magnet sensor on zone 1; everything else
		// unenrolled.
		data := make([]byte, length)
		if offset == 0 && length >= zoneDefStride {
			copy(data, []byte{1, 0x01, 0x05, 0x00})
		}
		return data
	}
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(i + 1)
	}
	return data
}
