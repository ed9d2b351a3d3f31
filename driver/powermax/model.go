package powermax

import "encoding/json"

// maxZoneCount is MAX_ZONE_COUNT: zone indices run 1..30, index 0 is
// the panel itself and is never surfaced to callers.
const maxZoneCount = 31

// ZoneEvent is the closed set of events that can be recorded against
// a zone.
type ZoneEvent int

const (
	ZoneEventNone ZoneEvent = iota
	ZoneEventTamperAlarm
	ZoneEventTamperRestore
	ZoneEventOpen
	ZoneEventClosed
	ZoneEventViolated
	ZoneEventPanicAlarm
	ZoneEventRFJamming
	ZoneEventTamperOpen
	ZoneEventCommunicationFailure
	ZoneEventLineFailure
	ZoneEventFuse
	ZoneEventNotActive
	ZoneEventLowBattery
	ZoneEventACFailure
	ZoneEventFireAlarm
	ZoneEventEmergency
	ZoneEventSirenTamper
	ZoneEventSirenTamperRestore
	ZoneEventSirenLowBattery
	ZoneEventSirenACFail
)

var zoneEventNames = [...]string{
	ZoneEventNone:                  "none",
	ZoneEventTamperAlarm:           "tamper-alarm",
	ZoneEventTamperRestore:         "tamper-restore",
	ZoneEventOpen:                  "open",
	ZoneEventClosed:                "closed",
	ZoneEventViolated:              "violated",
	ZoneEventPanicAlarm:            "panic-alarm",
	ZoneEventRFJamming:             "rf-jamming",
	ZoneEventTamperOpen:            "tamper-open",
	ZoneEventCommunicationFailure:  "communication-failure",
	ZoneEventLineFailure:           "line-failure",
	ZoneEventFuse:                  "fuse",
	ZoneEventNotActive:             "not-active",
	ZoneEventLowBattery:            "low-battery",
	ZoneEventACFailure:             "ac-failure",
	ZoneEventFireAlarm:             "fire-alarm",
	ZoneEventEmergency:             "emergency",
	ZoneEventSirenTamper:           "siren-tamper",
	ZoneEventSirenTamperRestore:    "siren-tamper-restore",
	ZoneEventSirenLowBattery:       "siren-low-battery",
	ZoneEventSirenACFail:           "siren-ac-fail",
}

func (e ZoneEvent) String() string {
	if int(e) < 0 || int(e) >= len(zoneEventNames) {
		return "unknown"
	}
	return zoneEventNames[e]
}

func (e ZoneEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// SystemStatus is the closed set of panel-wide states, with the wire
// codes the panel itself uses for the status byte.
type SystemStatus byte

const (
	StatusDisarm       SystemStatus = 0x00
	StatusExitDelay    SystemStatus = 0x01
	StatusExitDelay2   SystemStatus = 0x02
	StatusEntryDelay   SystemStatus = 0x03
	StatusArmedHome    SystemStatus = 0x04
	StatusArmedAway    SystemStatus = 0x05
	StatusUserTest     SystemStatus = 0x06
	StatusDownloading  SystemStatus = 0x07
	StatusProgramming  SystemStatus = 0x08
	StatusInstaller    SystemStatus = 0x09
	StatusHomeBypass   SystemStatus = 0x0a
	StatusAwayBypass   SystemStatus = 0x0b
	StatusReady        SystemStatus = 0x0c
	StatusNotReady     SystemStatus = 0x0d
)

var systemStatusNames = map[SystemStatus]string{
	StatusDisarm:      "disarm",
	StatusExitDelay:   "exit-delay",
	StatusExitDelay2:  "exit-delay-2",
	StatusEntryDelay:  "entry-delay",
	StatusArmedHome:   "armed-home",
	StatusArmedAway:   "armed-away",
	StatusUserTest:    "user-test",
	StatusDownloading: "downloading",
	StatusProgramming: "programming",
	StatusInstaller:   "installer",
	StatusHomeBypass:  "home-bypass",
	StatusAwayBypass:  "away-bypass",
	StatusReady:       "ready",
	StatusNotReady:    "not-ready",
}

func (s SystemStatus) String() string {
	if n, ok := systemStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s SystemStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Flags is the panel's 8-bit status bitfield. Bits 4-7 are one-shot:
// the panel is expected to clear them on the next status frame, but
// the engine stores whatever the panel last sent and exposes
// predicates rather than letting callers read-and-expect clearing
// (spec.md §9).
type Flags byte

const (
	flagReady Flags = 1 << iota
	flagMemoryAlert
	flagTrouble
	flagBypassOn
	flagLast10SecondsOfDelay
	flagZoneEvent
	flagArmDisarmEvent
	flagAlarmEvent
)

func (f Flags) Ready() bool                 { return f&flagReady != 0 }
func (f Flags) MemoryAlert() bool           { return f&flagMemoryAlert != 0 }
func (f Flags) Trouble() bool               { return f&flagTrouble != 0 }
func (f Flags) BypassOn() bool              { return f&flagBypassOn != 0 }
func (f Flags) LastTenSecondsOfDelay() bool { return f&flagLast10SecondsOfDelay != 0 }
func (f Flags) IsZoneEvent() bool           { return f&flagZoneEvent != 0 }
func (f Flags) IsArmDisarmEvent() bool      { return f&flagArmDisarmEvent != 0 }
func (f Flags) IsAlarmEvent() bool          { return f&flagAlarmEvent != 0 }

func (f Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Ready                 bool `json:"ready"`
		MemoryAlert           bool `json:"memoryAlert"`
		Trouble               bool `json:"trouble"`
		BypassOn              bool `json:"bypassOn"`
		LastTenSecondsOfDelay bool `json:"last10SecondsOfDelay"`
		ZoneEvent             bool `json:"zoneEvent"`
		ArmDisarmEvent        bool `json:"armDisarmEvent"`
		AlarmEvent            bool `json:"alarmEvent"`
	}{
		f.Ready(), f.MemoryAlert(), f.Trouble(), f.BypassOn(),
		f.LastTenSecondsOfDelay(), f.IsZoneEvent(), f.IsArmDisarmEvent(), f.IsAlarmEvent(),
	})
}

// ZoneState is the set of independent boolean conditions tracked per
// zone.
type ZoneState struct {
	LowBattery bool `json:"lowBattery"`
	Tamper     bool `json:"tamper"`
	DoorOpen   bool `json:"doorOpen"`
	Bypassed   bool `json:"bypassed"`
	Active     bool `json:"active"`
}

// Zone is a single sensor input, addressed 1..30. Index 0 is reserved
// for the panel itself and never surfaced via EnrolledZoneCount/dump.
type Zone struct {
	Enrolled   bool      `json:"enrolled"`
	Name       string    `json:"name"`
	ZoneType   uint8     `json:"zoneType"`
	SensorID   uint8     `json:"sensorId"`
	SensorType string    `json:"sensorType"`
	AutoCreate string    `json:"autoCreate"`
	State      ZoneState `json:"state"`

	LastEvent     ZoneEvent `json:"lastEvent"`
	LastEventTime uint64    `json:"lastEventTime"`
}

// PanelConfig holds the settings extracted from the downloaded EEPROM
// image by ProcessSettings (C7).
type PanelConfig struct {
	ParsedOK bool `json:"parsedOk"`

	InstallerPIN       string     `json:"-"`
	MasterInstallerPIN string     `json:"-"`
	PowerLinkPIN       string     `json:"-"`
	UserPINs           [48]string `json:"-"`

	Phone [4]string `json:"phone"`

	SerialNumber string `json:"serialNumber"`
	EEPROMRev    string `json:"eepromRev"`
	SoftwareRev  string `json:"softwareRev"`

	PartitionCount uint8 `json:"partitionCount"`

	MaxZoneCount      uint8 `json:"maxZoneCount"`
	MaxCustomCount    uint8 `json:"maxCustomCount"`
	MaxUserCount      uint8 `json:"maxUserCount"`
	MaxPartitionCount uint8 `json:"maxPartitionCount"`
	MaxSirenCount     uint8 `json:"maxSirenCount"`
	MaxKeypad1Count   uint8 `json:"maxKeypad1Count"`
	MaxKeypad2Count   uint8 `json:"maxKeypad2Count"`
	MaxKeyfobCount    uint8 `json:"maxKeyfobCount"`
}

// MasterInstallerPINCode returns the master installer PIN as a packed
// decimal integer (e.g. "1234" -> 1234), the Go rendering of the
// original's GetMasterPinAsHex accessor. ok is false when the PIN
// hasn't been parsed yet.
func (c *PanelConfig) MasterInstallerPINCode() (code int, ok bool) {
	if len(c.MasterInstallerPIN) != 4 {
		return 0, false
	}
	n := 0
	for _, r := range c.MasterInstallerPIN {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// modelDump is the JSON projection of the engine's domain model
// (spec.md §4.8): flags, overall status, only-enrolled zones, config,
// and seconds since the last successful frame.
type modelDump struct {
	Flags               Flags        `json:"flags"`
	Status              SystemStatus `json:"stat"`
	Zones               []zoneDump   `json:"zones"`
	Config              PanelConfig  `json:"cfg"`
	SecondsFromLastComm uint64       `json:"secondsFromLastComm"`
}

type zoneDump struct {
	Index int `json:"index"`
	Zone
}
