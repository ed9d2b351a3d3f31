package powermax

// This file holds the C8 inbound-opcode handlers referenced by the
// handlers table in command.go. Each handler mutates the engine's
// domain model and, where the protocol calls for it, enqueues
// follow-up commands; none of them write acknowledgements themselves
// (FeedPacket does that once, after dispatch, per spec.md §4.3).

func handleAck(e *Engine, payload []byte) {
	// The in-flight command bookkeeping already happened in
	// FeedPacket before dispatch; a bare ACK carries nothing further
	// for the domain model.
}

func handleAccessDenied(e *Engine, payload []byte) {
	e.logger.Logf(LogWarning, false, "handleAccessDenied", 0, "powermax: access denied in state %s", e.state)
	if e.state == stateEnrolling {
		e.SendCommand(CommandEnrollReply)
		return
	}
	// Outside enrolment the panel is refusing whatever we last sent
	// (bad PIN, wrong mode); drop it rather than retrying it into the
	// same refusal.
	e.lastSentCommand = nil
	e.retryCount = 0
}

func handleStop(e *Engine, payload []byte) {
	e.logger.Logf(LogWarning, false, "handleStop", 0, "powermax: panel requested stop, re-initializing session")
	e.Init()
}

func handleEnroll(e *Engine, payload []byte) {
	e.beginEnrollment()
}

func handlePing(e *Engine, payload []byte) {
	// Nothing beyond the acknowledgement FeedPacket already writes;
	// the ping's purpose is served by lastIOTime having been stamped.
}

// handlePanelInfo parses the PanelInfo frame the panel sends once
// enrolment completes: payload[1] is the panel type, payload[2] the
// model type, and bit 0 of payload[3] flags a PowerMaster-family panel
// (best-effort layout, see DESIGN.md's Open Question entry).
func handlePanelInfo(e *Engine, payload []byte) {
	if len(payload) < 4 {
		e.logger.Logf(LogErr, false, "handlePanelInfo", 0, "powermax: short PanelInfo payload")
		return
	}
	panelType := int(payload[1])
	modelType := int(payload[2])
	isPowerMaster := payload[3]&0x01 != 0
	e.receivePanelInfo(panelType, modelType, isPowerMaster)
}

func handleDownloadInfo(e *Engine, payload []byte) {
	if e.state != statePanelInfoReceived {
		return
	}
	e.beginDownload()
}

// handleDownloadSettings files the reply to the most recently issued
// DL_GET against the head of requestedRanges: payload[1] is the page,
// payload[2] the offset, and payload[3:] the data itself.
func handleDownloadSettings(e *Engine, payload []byte) {
	if len(e.requestedRanges) == 0 {
		return
	}
	if len(payload) < 3 {
		e.logger.Logf(LogErr, false, "handleDownloadSettings", 0, "powermax: short DownloadSettings payload")
		return
	}
	r := e.requestedRanges[0]
	data := payload[3:]
	if len(data) > r.length {
		data = data[:r.length]
	}
	if r.extended {
		e.mapExtended.write(r.page, r.offset, data)
	} else {
		e.mapMain.write(r.page, r.offset, data)
	}
	e.requestedRanges = e.requestedRanges[1:]
	e.requestNextRange()
}

// handleStatusUpdate, handleStatusChange, and handleStatusUpdatePanel
// all carry the same shape (spec.md §4.7): payload[1] is the
// SystemStatus byte, payload[2] the Flags byte, and, when the flags
// byte's zone-event bit is set, a 4-byte little-endian zone-open
// bitmap follows at payload[3:7] — bit i of the bitmap is zone i, zone
// 0 (the panel itself) occupying the otherwise-unused bit 0.
func handleStatusUpdate(e *Engine, payload []byte)      { parseStatusFrame(e, payload) }
func handleStatusChange(e *Engine, payload []byte)      { parseStatusFrame(e, payload) }
func handleStatusUpdatePanel(e *Engine, payload []byte) { parseStatusFrame(e, payload) }

func parseStatusFrame(e *Engine, payload []byte) {
	if len(payload) < 3 {
		return
	}
	oldStatus, oldFlags := e.status, e.flags
	e.status = SystemStatus(payload[1])
	e.flags = Flags(payload[2])
	if e.flags.IsZoneEvent() && len(payload) >= 7 {
		bitmap := uint32(payload[3]) | uint32(payload[4])<<8 | uint32(payload[5])<<16 | uint32(payload[6])<<24
		applyZoneOpenBitmap(e, bitmap)
	}
	e.enterMonitoring()
	if e.status != oldStatus || e.flags != oldFlags {
		e.notifyStatusChange()
	}
}

// applyZoneOpenBitmap walks zones 1..30 against bitmap, synthesising
// an Open/Closed ZoneEvent with last_event_time = now for every zone
// whose door-open bit actually changed (spec.md §4.7, §8 scenario 3).
func applyZoneOpenBitmap(e *Engine, bitmap uint32) {
	var now uint64
	if e.clock != nil {
		now = uint64(e.clock.Now().Unix())
	}
	for i := 1; i < maxZoneCount; i++ {
		open := bitmap&(1<<uint(i)) != 0
		z := &e.zones[i]
		if open == z.State.DoorOpen {
			continue
		}
		z.State.DoorOpen = open
		if open {
			z.LastEvent = ZoneEventOpen
		} else {
			z.LastEvent = ZoneEventClosed
		}
		z.LastEventTime = now
	}
}

// handleStatusUpdateZoneBat, handleStatusUpdateZoneTamper, and
// handleStatusUpdateZoneBypassed each carry a 32-bit little-endian
// bitmap of zones at payload[1:5] (spec.md §3), the same bit-i-is-zone-i
// convention as the zone-open bitmap above: every bit reflects that
// zone's *current* condition, not just a transition.
func handleStatusUpdateZoneBat(e *Engine, payload []byte) {
	applyZoneBitmap(e, payload, func(z *Zone, on bool, now uint64) {
		if on == z.State.LowBattery {
			return
		}
		z.State.LowBattery = on
		z.LastEvent = ZoneEventLowBattery
		z.LastEventTime = now
	})
}

func handleStatusUpdateZoneTamper(e *Engine, payload []byte) {
	applyZoneBitmap(e, payload, func(z *Zone, on bool, now uint64) {
		if on == z.State.Tamper {
			return
		}
		z.State.Tamper = on
		if on {
			z.LastEvent = ZoneEventTamperAlarm
		} else {
			z.LastEvent = ZoneEventTamperRestore
		}
		z.LastEventTime = now
	})
}

func handleStatusUpdateZoneBypassed(e *Engine, payload []byte) {
	applyZoneBitmap(e, payload, func(z *Zone, on bool, now uint64) {
		z.State.Bypassed = on
	})
}

// applyZoneBitmap decodes the 32-bit zone bitmap at payload[1:5] and
// invokes apply for every zone 1..30, marking a zone Enrolled the
// moment the panel reports a positive condition for it (a zero bit
// means "not currently in this condition", not "doesn't exist").
func applyZoneBitmap(e *Engine, payload []byte, apply func(z *Zone, on bool, now uint64)) {
	if len(payload) < 5 {
		return
	}
	bitmap := uint32(payload[1]) | uint32(payload[2])<<8 | uint32(payload[3])<<16 | uint32(payload[4])<<24
	var now uint64
	if e.clock != nil {
		now = uint64(e.clock.Now().Unix())
	}
	for i := 1; i < maxZoneCount; i++ {
		on := bitmap&(1<<uint(i)) != 0
		z := &e.zones[i]
		if on {
			z.Enrolled = true
		}
		apply(z, on, now)
	}
}

// handleEventLog emits the fixed-width records of an event-log reply:
// payload[1] is the total record count across the whole reply series,
// payload[2] this frame's sequence number, and the records themselves
// follow as 12-byte entries (second, minute, hour, day, month, year,
// zone/user, event code, and 4 reserved bytes).
func handleEventLog(e *Engine, payload []byte) {
	const recordLen = 12
	if len(payload) < 3 {
		return
	}
	total, seq := payload[1], payload[2]
	records := payload[3:]
	for i := 0; i+recordLen <= len(records); i += recordLen {
		r := records[i : i+recordLen]
		e.logger.Logf(LogInfo, true, "handleEventLog", 0,
			"event %d/%d: 20%02d-%02d-%02d %02d:%02d:%02d zone/user %d event %#02x",
			seq, total, r[5], r[4], r[3], r[2], r[1], r[0], r[6], r[7])
	}
}
