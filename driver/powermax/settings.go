package powermax

import "errors"

// ErrDownloadIncomplete is logged (not returned to a caller — nothing
// blocks on ProcessSettings) when a settings commit is attempted but
// one or more downloaded ranges never arrived; finishDownload reacts
// to it by staying in Downloading and re-requesting exactly those
// ranges, up to EngineConfig.MaxRetries times, after which it commits
// whatever PanelConfig it could parse.
var ErrDownloadIncomplete = errors.New("powermax: settings commit attempted with missing pages")

// EEPROM byte offsets within page 0 of the downloaded memory map,
// except offSerialNumber and offCapacities, which are offsets within
// page 1.
// Like the opcode table in command.go, these are a best-effort
// reconstruction (see DESIGN.md's Open Question entry): no wire trace
// of a real EEPROM dump is part of this exercise's corpus, so the
// layout below follows the widely documented community mapping of the
// panel's settings page rather than a captured image.
const (
	offInstallerPIN       = 0x00
	offMasterInstallerPIN = 0x02
	offPowerLinkPIN       = 0x2a
	offPhone1             = 0x2d
	offPhone2             = 0x38
	offPhone3             = 0x43
	offPhone4             = 0x4e
	offSerialNumber       = 0xe0
	offEEPROMRev          = 0xf2
	offSoftwareRev        = 0xfa
	offPartitionCount     = 0x58
	offCapacities         = 0xf8
	phoneLen              = 8
	serialLen             = 8
	revLen                = 4
)

// User PIN slots and per-zone definition records occupy their own
// EEPROM pages, downloaded as two dedicated DL_GET ranges.
const (
	userPINPage  = 0x02
	userPINCount = 48

	zoneDefPage   = 0x03
	zoneDefStride = 4
)

// zoneNamePage/zoneNameStride locate the zone-name table: 30
// fixed-width, space-padded 16-byte name slots. CommandDLZoneStr
// downloads the first slot; the rest come in as generic DL_GET ranges.
const (
	zoneNamePage   = 0x09
	zoneNameStride = 16
)

// ProcessSettings parses the accumulated EEPROM memory map into the
// engine's PanelConfig and per-zone Name/ZoneType/SensorType fields
// (C7). It is called once the download phase completes, and sets
// PanelConfig.ParsedOK only if every fixed-offset field it needs was
// actually present in the map.
func (e *Engine) ProcessSettings() {
	var cfg PanelConfig
	ok := true

	readStr := func(page uint8, offset uint8, n int) string {
		buf := make([]byte, n)
		k, got := e.mapMain.read(page, offset, buf)
		if !got {
			ok = false
		}
		return trimNUL(buf[:k])
	}
	readBCD := func(page uint8, offset uint8) string {
		buf := make([]byte, 2)
		_, got := e.mapMain.read(page, offset, buf)
		if !got {
			ok = false
			return ""
		}
		return bcdToDecimalString(buf)
	}

	cfg.InstallerPIN = readBCD(0, offInstallerPIN)
	cfg.MasterInstallerPIN = readBCD(0, offMasterInstallerPIN)
	cfg.PowerLinkPIN = readBCD(0, offPowerLinkPIN)

	cfg.Phone[0] = readStr(0, offPhone1, phoneLen)
	cfg.Phone[1] = readStr(0, offPhone2, phoneLen)
	cfg.Phone[2] = readStr(0, offPhone3, phoneLen)
	cfg.Phone[3] = readStr(0, offPhone4, phoneLen)

	cfg.SerialNumber = readStr(1, offSerialNumber, serialLen)
	cfg.EEPROMRev = readStr(0, offEEPROMRev, revLen)
	cfg.SoftwareRev = readStr(0, offSoftwareRev, revLen)

	partBuf := make([]byte, 1)
	if _, got := e.mapMain.read(0, offPartitionCount, partBuf); got {
		cfg.PartitionCount = partBuf[0]
	} else {
		ok = false
	}

	for i := range cfg.UserPINs {
		cfg.UserPINs[i] = readBCD(userPINPage, uint8(i*2))
	}

	defs := make([]byte, (maxZoneCount-1)*zoneDefStride)
	if _, got := e.mapMain.read(zoneDefPage, 0, defs); got {
		for i := 1; i < maxZoneCount; i++ {
			rec := defs[(i-1)*zoneDefStride:]
			z := &e.zones[i]
			z.Enrolled = rec[0] != 0
			z.ZoneType = rec[1]
			z.SensorID = rec[2]
			z.SensorType, z.AutoCreate = sensorTypeFor(rec[2])
		}
	} else {
		ok = false
	}

	caps := make([]byte, 8)
	if _, got := e.mapMain.read(1, offCapacities, caps); got {
		cfg.MaxZoneCount = caps[0]
		cfg.MaxCustomCount = caps[1]
		cfg.MaxUserCount = caps[2]
		cfg.MaxPartitionCount = caps[3]
		cfg.MaxSirenCount = caps[4]
		cfg.MaxKeypad1Count = caps[5]
		cfg.MaxKeypad2Count = caps[6]
		cfg.MaxKeyfobCount = caps[7]
	} else {
		ok = false
	}

	for i := 1; i < maxZoneCount; i++ {
		name := make([]byte, zoneNameStride)
		addr := (i - 1) * zoneNameStride
		page := zoneNamePage + addr/256
		if _, got := e.mapExtended.read(uint8(page), uint8(addr%256), name); got {
			e.zones[i].Name = trimNUL(name)
		} else {
			ok = false
		}
	}

	cfg.ParsedOK = ok
	e.config = cfg
}

// sensorTypeFor interns a zone-definition sensor-id byte as the fixed
// sensor-type and auto-create vocabulary the panel families share.
func sensorTypeFor(id uint8) (sensorType, autoCreate string) {
	switch id {
	case 0x03, 0x04, 0x0c:
		return "Motion", "motion"
	case 0x05, 0x06, 0x0b:
		return "Magnet", "door"
	case 0x07, 0x0a:
		return "Smoke", "smoke"
	case 0x0f:
		return "Wired", "door"
	default:
		return "Unknown", ""
	}
}

// trimNUL trims a NUL-padded or space-padded fixed-width EEPROM string
// field down to its meaningful prefix.
func trimNUL(b []byte) string {
	n := len(b)
	for n > 0 && (b[n-1] == 0 || b[n-1] == ' ') {
		n--
	}
	return string(b[:n])
}

// bcdToDecimalString renders a 2-byte BCD-packed PIN as its 4 decimal
// digits, the inverse of bcdPIN.
func bcdToDecimalString(buf []byte) string {
	digits := [4]byte{
		buf[0] >> 4, buf[0] & 0x0f,
		buf[1] >> 4, buf[1] & 0x0f,
	}
	out := make([]byte, 4)
	for i, d := range digits {
		if d > 9 {
			return ""
		}
		out[i] = '0' + d
	}
	return string(out)
}
