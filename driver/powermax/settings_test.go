package powermax

import (
	"bytes"
	"testing"
	"time"
)

func TestProcessSettingsExtractsFields(t *testing.T) {
	var sink bytes.Buffer
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := New(EngineConfig{}, &sink, clock, NopLogger())

	// Page 0: PINs, phone numbers, partition count, revisions.
	e.mapMain.write(0, offInstallerPIN, []byte{0x12, 0x34})
	e.mapMain.write(0, offMasterInstallerPIN, []byte{0x56, 0x78})
	e.mapMain.write(0, offPowerLinkPIN, []byte{0x36, 0x22})
	e.mapMain.write(0, offPhone1, []byte("12345678"))
	e.mapMain.write(0, offPhone2, []byte("87654321"))
	e.mapMain.write(0, offPhone3, []byte("        "))
	e.mapMain.write(0, offPhone4, []byte("        "))
	e.mapMain.write(0, offPartitionCount, []byte{1})
	e.mapMain.write(0, offEEPROMRev, []byte("J-01"))
	e.mapMain.write(0, offSoftwareRev, []byte("8.0 "))

	// Page 1: serial number and capacity bytes.
	e.mapMain.write(1, offSerialNumber, append([]byte("A1B2C3"), 0, 0))
	e.mapMain.write(1, offCapacities, []byte{30, 5, 48, 1, 2, 8, 8, 8})

	// User PIN slots, first user 4321, the rest zeroed.
	pins := make([]byte, userPINCount*2)
	pins[0], pins[1] = 0x43, 0x21
	e.mapMain.write(userPINPage, 0, pins)

	// Zone definitions: zone 1 an enrolled magnet contact, zone 3 an
	// enrolled motion sensor.
	defs := make([]byte, (maxZoneCount-1)*zoneDefStride)
	copy(defs[0:], []byte{1, 0x01, 0x05, 0x00})
	copy(defs[2*zoneDefStride:], []byte{1, 0x02, 0x03, 0x00})
	e.mapMain.write(zoneDefPage, 0, defs)

	// Extended map: the zone-name table, space-padded 16-byte slots.
	names := make([]byte, (maxZoneCount-1)*zoneNameStride)
	for i := range names {
		names[i] = ' '
	}
	copy(names[0:], "Front Door")
	copy(names[2*zoneNameStride:], "Kitchen")
	e.mapExtended.write(zoneNamePage, 0, names)

	e.ProcessSettings()

	cfg := e.config
	if !cfg.ParsedOK {
		t.Error("ParsedOK = false with every region present")
	}
	if cfg.InstallerPIN != "1234" {
		t.Errorf("InstallerPIN = %q, want 1234", cfg.InstallerPIN)
	}
	if cfg.MasterInstallerPIN != "5678" {
		t.Errorf("MasterInstallerPIN = %q, want 5678", cfg.MasterInstallerPIN)
	}
	if cfg.PowerLinkPIN != "3622" {
		t.Errorf("PowerLinkPIN = %q, want 3622", cfg.PowerLinkPIN)
	}
	if cfg.Phone[0] != "12345678" {
		t.Errorf("Phone[0] = %q, want 12345678", cfg.Phone[0])
	}
	if cfg.Phone[1] != "87654321" {
		t.Errorf("Phone[1] = %q, want 87654321", cfg.Phone[1])
	}
	if cfg.Phone[2] != "" {
		t.Errorf("Phone[2] = %q, want empty for a blank slot", cfg.Phone[2])
	}
	if cfg.SerialNumber != "A1B2C3" {
		t.Errorf("SerialNumber = %q, want A1B2C3", cfg.SerialNumber)
	}
	if cfg.EEPROMRev != "J-01" {
		t.Errorf("EEPROMRev = %q, want J-01", cfg.EEPROMRev)
	}
	if cfg.SoftwareRev != "8.0" {
		t.Errorf("SoftwareRev = %q, want 8.0", cfg.SoftwareRev)
	}
	if cfg.PartitionCount != 1 {
		t.Errorf("PartitionCount = %d, want 1", cfg.PartitionCount)
	}
	if cfg.MaxZoneCount != 30 || cfg.MaxUserCount != 48 {
		t.Errorf("capacities = %d zones / %d users, want 30 / 48", cfg.MaxZoneCount, cfg.MaxUserCount)
	}
	if cfg.UserPINs[0] != "4321" {
		t.Errorf("UserPINs[0] = %q, want 4321", cfg.UserPINs[0])
	}
	if got := e.zones[1].Name; got != "Front Door" {
		t.Errorf("zone 1 name = %q, want Front Door", got)
	}
	if got := e.zones[3].Name; got != "Kitchen" {
		t.Errorf("zone 3 name = %q, want Kitchen", got)
	}
	if !e.zones[1].Enrolled || e.zones[1].SensorType != "Magnet" || e.zones[1].AutoCreate != "door" {
		t.Errorf("zone 1 = %+v, want enrolled magnet/door", e.zones[1])
	}
	if !e.zones[3].Enrolled || e.zones[3].SensorType != "Motion" {
		t.Errorf("zone 3 = %+v, want enrolled motion sensor", e.zones[3])
	}
	if e.zones[2].Enrolled {
		t.Error("zone 2 enrolled with a zeroed definition record")
	}

	if code, ok := cfg.MasterInstallerPINCode(); !ok || code != 5678 {
		t.Errorf("MasterInstallerPINCode = %d, %v, want 5678, true", code, ok)
	}
}

func TestProcessSettingsMissingRegionClearsParsedOK(t *testing.T) {
	var sink bytes.Buffer
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := New(EngineConfig{}, &sink, clock, NopLogger())

	// Only page 0 present; serial/capacities and the zone-name table
	// never arrived.
	e.mapMain.write(0, 0, make([]byte, 256))
	e.ProcessSettings()
	if e.config.ParsedOK {
		t.Error("ParsedOK = true with page 1 and the zone-name table missing")
	}
}

func TestBCDToDecimalString(t *testing.T) {
	if got := bcdToDecimalString([]byte{0x36, 0x22}); got != "3622" {
		t.Errorf("bcdToDecimalString(36 22) = %q, want 3622", got)
	}
	if got := bcdToDecimalString([]byte{0x0f, 0x00}); got != "" {
		t.Errorf("bcdToDecimalString with a non-decimal nibble = %q, want empty", got)
	}
}

func TestTrimNUL(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte("abc\x00\x00"), "abc"},
		{[]byte("abc   "), "abc"},
		{[]byte("\x00\x00"), ""},
		{[]byte("a b"), "a b"},
	}
	for _, c := range cases {
		if got := trimNUL(c.in); got != c.want {
			t.Errorf("trimNUL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
