package powermax

// opcode is the first payload byte of a decoded frame: the
// message-type opcode (spec.md §3). Wire values below are a
// best-effort reconstruction — no wire trace of a real panel is part
// of this exercise's corpus (see DESIGN.md's Open Question entry) —
// chosen to match the one concrete example spec.md §8 gives (a
// PanelInfo frame beginning with the byte 0xA5).
type opcode byte

const (
	opAck                      opcode = 0x02
	opPing                     opcode = 0x06
	opAccessDenied             opcode = 0x08
	opStop                     opcode = 0x0b
	opEnroll                   opcode = 0x3c
	opDownloadInfo             opcode = 0x3e
	opDownloadSettings         opcode = 0x3f
	opPanelInfo                opcode = 0xa5
	opStatusUpdate             opcode = 0xa0
	opStatusChange             opcode = 0xa1
	opStatusUpdatePanel        opcode = 0xa2
	opStatusUpdateZoneBat      opcode = 0xa3
	opStatusUpdateZoneTamper   opcode = 0xa4
	opStatusUpdateZoneBypassed opcode = 0xa7
	opEventLog                 opcode = 0xa6
)

// Command identifies an outbound command template (PmaxCommand in the
// original header).
type Command int

const (
	CommandAck Command = iota
	CommandPing
	CommandGetEventLog
	CommandDisarm
	CommandArmHome
	CommandArmAway
	CommandArmAwayInstant
	CommandReqStatus
	CommandEnrollReply
	CommandInit
	CommandRestore
	CommandDLStart
	CommandDLGet
	CommandDLExit
	CommandDLPanelFW
	CommandDLSerial
	CommandDLZoneStr
)

// commandTemplate is immutable, program-lifetime data: the raw
// template bytes (with PIN slots zeroed), its description, the
// expected inbound reply opcode (0 = none), and where/whether a PIN
// must be patched in before sending.
type commandTemplate struct {
	bytes         []byte
	description   string
	expectedReply opcode
	// pinOffset is the byte offset at which a 2-byte BCD PIN is
	// patched into the template; 0 means the template carries no
	// PIN slot at all.
	pinOffset int
	// useEnrollPIN patches with EngineConfig.EnrollPIN (the fixed
	// PowerLink accessory PIN) instead of a PanelConfig PIN.
	useEnrollPIN bool
}

// defaultPINOffset is the byte offset at which a 2-byte BCD PIN is
// patched into most arm/disarm templates.
const defaultPINOffset = 4

var commandTemplates = map[Command]commandTemplate{
	CommandAck: {
		bytes:       []byte{byte(opAck)},
		description: "ack",
	},
	CommandPing: {
		bytes:       []byte{byte(opPing)},
		description: "ping",
	},
	CommandGetEventLog: {
		bytes:         []byte{0xa0, 0x04},
		description:   "get event log",
		expectedReply: opEventLog,
	},
	CommandDisarm: {
		bytes:         []byte{0x0a, 0x00, 0x00, 0x00, 0x00, 0x00},
		description:   "disarm",
		expectedReply: opStatusUpdatePanel,
		pinOffset:     defaultPINOffset,
	},
	CommandArmHome: {
		bytes:         []byte{0x0a, 0x04, 0x00, 0x00, 0x00, 0x00},
		description:   "arm home",
		expectedReply: opStatusUpdatePanel,
		pinOffset:     defaultPINOffset,
	},
	CommandArmAway: {
		bytes:         []byte{0x0a, 0x05, 0x00, 0x00, 0x00, 0x00},
		description:   "arm away",
		expectedReply: opStatusUpdatePanel,
		pinOffset:     defaultPINOffset,
	},
	CommandArmAwayInstant: {
		bytes:         []byte{0x0a, 0x15, 0x00, 0x00, 0x00, 0x00},
		description:   "arm away instant",
		expectedReply: opStatusUpdatePanel,
		pinOffset:     defaultPINOffset,
	},
	CommandReqStatus: {
		bytes:         []byte{0xa2, 0x00},
		description:   "request status",
		expectedReply: opStatusUpdatePanel,
	},
	CommandEnrollReply: {
		bytes:         []byte{byte(opEnroll), 0x00, 0x00},
		description:   "enroll reply",
		expectedReply: opAck,
		pinOffset:     1,
		useEnrollPIN:  true,
	},
	CommandInit: {
		bytes:       []byte{0x3a, 0x00},
		description: "init",
	},
	CommandRestore: {
		bytes:         []byte{0x3d, 0x00},
		description:   "restore",
		expectedReply: opAck,
	},
	CommandDLStart: {
		bytes:         []byte{byte(opDownloadInfo), 0x00},
		description:   "download start",
		expectedReply: opDownloadInfo,
	},
	CommandDLGet: {
		bytes:         []byte{0x3f, 0x00, 0x00, 0x00},
		description:   "download get range",
		expectedReply: opDownloadSettings,
	},
	CommandDLExit: {
		bytes:       []byte{0x35, 0x00},
		description: "download exit",
	},
	CommandDLPanelFW: {
		bytes:         []byte{0x3f, 0xfe, 0x00, 0x06},
		description:   "download panel firmware block",
		expectedReply: opDownloadSettings,
	},
	// CommandDLSerial targets the same (page, offset, length) that
	// settings.go's ProcessSettings reads the serial number back from,
	// so the dedicated download step and the parser agree on one
	// location instead of the generic DL_GET ranges fetching it again.
	CommandDLSerial: {
		bytes:         []byte{0x3f, 0x01, offSerialNumber, serialLen},
		description:   "download serial block",
		expectedReply: opDownloadSettings,
	},
	// CommandDLZoneStr fetches the first zone-name slot (zone 1); the
	// remaining 29 slots are requested with the generic DL_GET ranges
	// beginDownload appends afterwards.
	CommandDLZoneStr: {
		bytes:         []byte{0x3f, zoneNamePage, 0x00, zoneNameStride},
		description:   "download zone name block",
		expectedReply: opDownloadSettings,
	},
}

// handlerFunc processes a decoded inbound payload, mutating the
// engine's domain model and possibly enqueuing follow-up commands.
type handlerFunc func(e *Engine, payload []byte)

// handlers is the exhaustive inbound opcode -> handler mapping
// (C4's "command table" for inbound messages). Opcodes absent from
// this map are logged and ACKed (spec.md §4.4, §4.7).
var handlers = map[opcode]handlerFunc{
	opAck:                      handleAck,
	opAccessDenied:             handleAccessDenied,
	opStop:                     handleStop,
	opEnroll:                   handleEnroll,
	opPing:                     handlePing,
	opPanelInfo:                handlePanelInfo,
	opDownloadInfo:             handleDownloadInfo,
	opDownloadSettings:         handleDownloadSettings,
	opStatusUpdate:             handleStatusUpdate,
	opStatusChange:             handleStatusChange,
	opStatusUpdatePanel:        handleStatusUpdatePanel,
	opStatusUpdateZoneBat:      handleStatusUpdateZoneBat,
	opStatusUpdateZoneTamper:   handleStatusUpdateZoneTamper,
	opStatusUpdateZoneBypassed: handleStatusUpdateZoneBypassed,
	opEventLog:                 handleEventLog,
}
