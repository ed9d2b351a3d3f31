// Package powermax implements a host-side driver that speaks the
// proprietary serial "PowerLink" protocol of a Visonic PowerMax family
// alarm panel. The driver enrolls with the panel as a PowerLink
// accessory, downloads the panel's EEPROM configuration image, parses
// it, and then keeps a live mirror of panel state while issuing
// control commands.
//
// The Engine never performs I/O itself: it is driven by two entry
// points, FeedPacket (decoded inbound bytes) and Tick (a periodic
// timer), and it writes outbound bytes through the Transport supplied
// to New. Callers that want a ready-made I/O loop can use Run instead.
package powermax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// sessionState is the enrolment/download state machine (C6).
type sessionState int

const (
	stateIdle sessionState = iota
	stateEnrolling
	statePanelInfoReceived
	stateDownloading
	stateSettingsParsed
	stateMonitoring
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateEnrolling:
		return "enrolling"
	case statePanelInfoReceived:
		return "panel-info-received"
	case stateDownloading:
		return "downloading"
	case stateSettingsParsed:
		return "settings-parsed"
	case stateMonitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

// EngineConfig holds the host-supplied tunables that the original
// header fixed at compile time (PACKET_TIMEOUT_DEFINED, POWERLINK_PIN).
type EngineConfig struct {
	// PacketTimeout is the per-command deadline; zero selects the
	// default of 2000ms (os_cfg_getPacketTimeout's default).
	PacketTimeout time.Duration
	// KeepAliveInterval is how long the engine waits for inbound
	// traffic before issuing a RESTORE/REQSTATUS pair; zero selects
	// a 30s default.
	KeepAliveInterval time.Duration
	// MaxRetries bounds how many times a timed-out command is
	// re-sent before the engine gives up and reports CommsFailure;
	// zero selects a default of 2.
	MaxRetries int
	// StrictChecksum disables the documented panel quirk of
	// accepting a checksum byte that is off by ±1.
	StrictChecksum bool
	// EnrollPIN is the PowerLink enrolment PIN, as the 4 decimal
	// digits the panel expects (default 3622, from the header's
	// 0x3622 "hex-looking decimal").
	EnrollPIN int
	// OnStatusChange, when non-nil, is invoked after an inbound
	// frame changes the system status or flags. It runs on the
	// goroutine driving FeedPacket and must not re-enter the engine.
	OnStatusChange func(*Engine)
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.PacketTimeout <= 0 {
		c.PacketTimeout = 2000 * time.Millisecond
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.EnrollPIN == 0 {
		c.EnrollPIN = 3622
	}
	return c
}

// Transport is the serial byte transport the engine reads from and
// writes to. It is an external collaborator (spec.md §6); the engine
// performs no I/O of its own beyond calling these methods.
type Transport interface {
	io.Reader
	io.Writer
}

// Clock is a monotonic wall-clock source, seconds-resolution being
// sufficient for the engine's purposes.
type Clock interface {
	Now() time.Time
}

// realClock adapts the standard library's time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns a Clock backed by the standard library.
func RealClock() Clock { return realClock{} }

// dlRange identifies one requested EEPROM download range. cmd is the
// outbound command template used to request it: the three named steps
// spec.md §4.6 calls for (DL_PANELFW, DL_SERIAL, DL_ZONESTR) carry
// their own fixed page/offset/length, while the bulk of the download
// uses the generic CommandDLGet template patched with page/offset/
// length at send time. extended selects which of the engine's two
// memory maps the reply is filed into: the zone-name table lives in
// the extended map, everything else in the main one.
type dlRange struct {
	cmd          Command
	page, offset uint8
	length       int
	extended     bool
}

// Engine is the protocol engine: the sole owner of the panel session,
// the send queue, the memory-map accumulator, and the domain model.
// It is not safe for concurrent use; callers driving FeedPacket and
// Tick from multiple goroutines must serialize both behind one mutex
// or one actor, per spec.md §5.
type Engine struct {
	cfg       EngineConfig
	transport Transport
	clock     Clock
	logger    Logger

	state sessionState

	flags  Flags
	status SystemStatus
	zones  [maxZoneCount]Zone
	config PanelConfig

	lastIOTime time.Time

	q queue

	enrolCompleted  bool
	downloadMode    bool
	reenrollPending bool
	panelType       int
	modelType       int
	isPowerMaster   bool
	ackTypeForLast  ackKind

	mapMain, mapExtended memoryMap

	lastSentCommand *queuedCommand
	sendDeadline    time.Time
	retryCount      int
	lastPingTime    time.Time

	decoder *frameDecoder

	requestedRanges []dlRange
	downloadRanges  []dlRange
	downloadRetries int
}

// New constructs an Engine. transport, clock, and logger are the
// external collaborators from spec.md §6; none of them are touched
// until Init, FeedPacket, Tick, or Run is called.
func New(cfg EngineConfig, transport Transport, clock Clock, logger Logger) *Engine {
	if logger == nil {
		logger = NopLogger()
	}
	e := &Engine{
		cfg:       cfg.withDefaults(),
		transport: transport,
		clock:     clock,
		logger:    logger,
	}
	e.Init()
	return e
}

// Init resets the engine to its power-on state: zeroed domain model,
// empty queue, Idle state machine, and a freshly stamped lastIOTime.
func (e *Engine) Init() {
	e.state = stateIdle
	e.flags = 0
	e.status = StatusDisarm
	e.zones = [maxZoneCount]Zone{}
	e.config = PanelConfig{}
	e.q.Clear()
	e.enrolCompleted = false
	e.downloadMode = false
	e.reenrollPending = false
	e.panelType = 0
	e.modelType = 0
	e.isPowerMaster = false
	e.ackTypeForLast = ack1
	e.mapMain = memoryMap{}
	e.mapExtended = memoryMap{}
	e.lastSentCommand = nil
	e.sendDeadline = time.Time{}
	e.retryCount = 0
	e.requestedRanges = nil
	e.downloadRanges = nil
	e.downloadRetries = 0
	e.decoder = newFrameDecoder(e.cfg.StrictChecksum)
	if e.clock != nil {
		e.lastIOTime = e.clock.Now()
		e.lastPingTime = e.lastIOTime
	}
}

// SendCommand enqueues the command identified by cmd for
// transmission, patching in the installer PIN unless overridden by
// WithPIN. It returns ErrQueueFull if the queue is at capacity.
func (e *Engine) SendCommand(cmd Command, opts ...SendOption) error {
	tmpl, ok := commandTemplates[cmd]
	if !ok {
		return fmt.Errorf("powermax: unknown command %d", cmd)
	}
	switch cmd {
	case CommandArmHome, CommandArmAway, CommandArmAwayInstant, CommandDisarm, CommandGetEventLog:
		// User-initiable controls need a live, fully enrolled session.
		if e.state != stateMonitoring {
			return fmt.Errorf("powermax: %q not available in state %s", tmpl.description, e.state)
		}
	}
	qc := queuedCommand{
		bytes:         append([]byte(nil), tmpl.bytes...),
		description:   tmpl.description,
		expectedReply: tmpl.expectedReply,
		pinClass:      InstallerPIN,
		pinOffset:     tmpl.pinOffset,
		useEnrollPIN:  tmpl.useEnrollPIN,
	}
	for _, opt := range opts {
		opt(&qc)
	}
	return e.queueCommand(qc)
}

// SendOption customizes a queued command before it is enqueued.
type SendOption func(*queuedCommand)

// WithPIN overrides which PIN class patches the command's template.
func WithPIN(class PINClass) SendOption {
	return func(qc *queuedCommand) { qc.pinClass = class }
}

// FeedPacket accepts a single deframed, checksum-validated packet
// (as produced internally by the frame decoder, or directly by a
// caller that already has its own framing layer) and dispatches it.
// Unknown opcodes are logged and ACKed.
func (e *Engine) FeedPacket(payload []byte) {
	if !isBufferOK(payload) {
		e.logger.Logf(LogDebug, false, "FeedPacket", 0, "powermax: malformed packet dropped")
		return
	}
	if e.clock != nil {
		e.lastIOTime = e.clock.Now()
	}
	e.ackTypeForLast = calculateAckType(payload)

	op := opcode(payload[0])
	if e.lastSentCommand != nil && e.lastSentCommand.expectedReply == op {
		e.lastSentCommand = nil
		e.retryCount = 0
	}

	h, known := handlers[op]
	if !known {
		e.logger.Logf(LogInfo, false, "FeedPacket", 0, "powermax: unknown opcode %#02x", op)
		e.writeAck()
		return
	}
	h(e, payload)
	if op != opAck {
		e.writeAck()
	}
}

// FeedBytes decodes raw transport bytes into frames and dispatches
// each completed one, the convenience most callers want over manually
// driving a frameDecoder.
func (e *Engine) FeedBytes(data []byte) {
	e.decoder.Feed(data, e.FeedPacket, func(err error) {
		e.logger.Logf(LogDebug, false, "FeedBytes", 0, "powermax: %v", err)
	})
}

// Tick drives the send-queue timer and the keep-alive timer. It must
// be called at least every 200ms (spec.md §4.9).
func (e *Engine) Tick() {
	if e.clock == nil {
		return
	}
	now := e.clock.Now()
	if e.reenrollPending && e.state == stateIdle {
		e.reenrollPending = false
		e.beginEnrollment()
	}
	e.checkKeepAlive(now)
	e.sendNextCommand(now)
}

// Run is an optional convenience loop implementing the
// single-threaded cooperative scheduling model from spec.md §5: it
// reads from the Transport, feeds bytes to the decoder, and calls
// Tick on a fixed period, until ctx is cancelled or a read error
// occurs. Callers with their own I/O loop may ignore Run and drive
// FeedBytes/FeedPacket and Tick directly.
func (e *Engine) Run(ctx context.Context) error {
	const tickPeriod = 100 * time.Millisecond
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	readErr := make(chan error, 1)
	read := make(chan []byte)
	go func() {
		buf := make([]byte, maxFrameLen)
		for ctx.Err() == nil {
			n, err := e.transport.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case read <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case chunk := <-read:
			e.FeedBytes(chunk)
		case <-ticker.C:
			e.Tick()
		}
	}
}

// SecondsFromLastComm reports how many seconds have elapsed since the
// last successfully received frame.
func (e *Engine) SecondsFromLastComm() uint64 {
	if e.clock == nil {
		return 0
	}
	d := e.clock.Now().Sub(e.lastIOTime)
	if d < 0 {
		return 0
	}
	return uint64(d / time.Second)
}

// EnrolledZoneCount reports how many of zones 1..30 are enrolled.
func (e *Engine) EnrolledZoneCount() int {
	n := 0
	for i := 1; i < maxZoneCount; i++ {
		if e.zones[i].Enrolled {
			n++
		}
	}
	return n
}

// ZoneName returns the EEPROM-derived name of zone i, or "" if i is
// out of range or unenrolled.
func (e *Engine) ZoneName(i int) string {
	if i <= 0 || i >= maxZoneCount || !e.zones[i].Enrolled {
		return ""
	}
	return e.zones[i].Name
}

// State reports the current enrolment/download state machine state.
func (e *Engine) State() string { return e.state.String() }

// DumpJSON writes the JSON projection of the domain model:
// {flags, stat, zones (enrolled only), cfg, secondsFromLastComm}.
func (e *Engine) DumpJSON(w io.Writer) error {
	dump := modelDump{
		Flags:               e.flags,
		Status:              e.status,
		Config:              e.config,
		SecondsFromLastComm: e.SecondsFromLastComm(),
	}
	for i := 1; i < maxZoneCount; i++ {
		if !e.zones[i].Enrolled {
			continue
		}
		dump.Zones = append(dump.Zones, zoneDump{Index: i, Zone: e.zones[i]})
	}
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	if err := enc.Encode(dump); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// notifyStatusChange invokes the host's OnStatusChange hook, if any.
func (e *Engine) notifyStatusChange() {
	if e.cfg.OnStatusChange != nil {
		e.cfg.OnStatusChange(e)
	}
}

// writeAck writes the ACK frame matching the acknowledgement kind
// computed for the most recently received frame.
func (e *Engine) writeAck() {
	e.writeFrame(ackFrame(e.ackTypeForLast))
}

// writeFrame writes already-encoded wire bytes to the transport.
func (e *Engine) writeFrame(frame []byte) {
	if e.transport == nil {
		return
	}
	if _, err := e.transport.Write(frame); err != nil {
		e.logger.Logf(LogErr, false, "writeFrame", 0, "powermax: write: %v", err)
	}
}
