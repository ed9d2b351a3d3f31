package powermax

import "time"

// This file holds the C6 enrolment/download state machine transitions
// that span more than a single inbound opcode: the handlers in
// dispatch.go call into these helpers rather than mutating e.state
// directly, so the legal transitions stay in one place.

// beginEnrollment moves Idle -> Enrolling and queues the PowerLink
// accessory PIN reply the panel is waiting for.
func (e *Engine) beginEnrollment() {
	if e.state != stateIdle {
		return
	}
	e.state = stateEnrolling
	e.enrolCompleted = false
	e.SendCommand(CommandEnrollReply)
}

// receivePanelInfo moves Enrolling -> PanelInfoReceived, records the
// panel/model identifiers, and kicks off the download phase.
func (e *Engine) receivePanelInfo(panelType, modelType int, isPowerMaster bool) {
	e.state = statePanelInfoReceived
	e.panelType = panelType
	e.modelType = modelType
	e.isPowerMaster = isPowerMaster
	e.SendCommand(CommandDLStart)
}

// beginDownload moves PanelInfoReceived -> Downloading and queues the
// fixed sequence spec.md §4.6 calls for: DL_PANELFW, DL_SERIAL,
// DL_ZONESTR, then as many DL_GET ranges as covering the page-0
// settings block, the capacity bytes, the user PIN and
// zone-definition pages, and the remaining zone-name slots requires.
// Each range is tracked in requestedRanges so the matching
// handleDownloadSettings reply can be filed at the right memory-map
// address.
func (e *Engine) beginDownload() {
	e.state = stateDownloading
	e.downloadMode = true
	e.downloadRetries = 0
	ranges := []dlRange{
		// Diagnostic-only; not part of PanelConfig, but still
		// committed to the main map like every other range.
		{cmd: CommandDLPanelFW, page: 0xfe, offset: 0x00, length: 6},
		{cmd: CommandDLSerial, page: 1, offset: offSerialNumber, length: serialLen},
		{cmd: CommandDLZoneStr, page: zoneNamePage, offset: 0x00, length: zoneNameStride, extended: true},
	}
	const pageChunk = 32
	for off := 0; off < 256; off += pageChunk {
		ranges = append(ranges, dlRange{cmd: CommandDLGet, page: 0, offset: uint8(off), length: pageChunk})
	}
	ranges = append(ranges,
		dlRange{cmd: CommandDLGet, page: 1, offset: offCapacities, length: 8},
		dlRange{cmd: CommandDLGet, page: userPINPage, offset: 0, length: userPINCount * 2},
		dlRange{cmd: CommandDLGet, page: zoneDefPage, offset: 0, length: (maxZoneCount - 1) * zoneDefStride},
	)
	// Zone 1's name slot was already requested by CommandDLZoneStr
	// above; the rest (zones 2..30) follow as generic DL_GET ranges.
	for i := 1; i < maxZoneCount-1; i++ {
		addr := i * zoneNameStride
		ranges = append(ranges, dlRange{
			cmd:      CommandDLGet,
			page:     uint8(zoneNamePage + addr/256),
			offset:   uint8(addr % 256),
			length:   zoneNameStride,
			extended: true,
		})
	}
	e.downloadRanges = ranges
	e.requestedRanges = append([]dlRange(nil), ranges...)
	e.requestNextRange()
}

// requestNextRange sends the request for the head of requestedRanges,
// or, once the list is drained, finishes the download: commits the
// parsed settings and advances to SettingsParsed. Ranges requested
// through the generic CommandDLGet template have their page/offset/
// length patched in at send time; the three named steps carry their
// own fixed addressing and are sent as-is.
func (e *Engine) requestNextRange() {
	if len(e.requestedRanges) == 0 {
		e.finishDownload()
		return
	}
	r := e.requestedRanges[0]
	tmpl := commandTemplates[r.cmd]
	bytes := append([]byte(nil), tmpl.bytes...)
	if r.cmd == CommandDLGet {
		bytes[1] = r.page
		bytes[2] = r.offset
		bytes[3] = byte(r.length)
	}
	e.queueCommand(queuedCommand{
		bytes:         bytes,
		description:   tmpl.description,
		expectedReply: tmpl.expectedReply,
	})
}

// finishDownload is reached once every requested range has a reply
// filed against it. It parses the accumulated memory map; if every
// range it depends on actually landed, it moves Downloading ->
// SettingsParsed and requests a status update to learn the panel's
// live state before declaring Monitoring. If a page never arrived
// (ParsedOK false) it logs ErrDownloadIncomplete and re-requests just
// the missing ranges instead of committing a half-populated
// PanelConfig, bounded by cfg.MaxRetries attempts before giving up and
// committing whatever was actually downloaded.
func (e *Engine) finishDownload() {
	e.ProcessSettings()
	if !e.config.ParsedOK {
		missing := e.missingRanges()
		if len(missing) > 0 && e.downloadRetries < e.cfg.MaxRetries {
			e.downloadRetries++
			e.logger.Logf(LogWarning, false, "finishDownload", 0,
				"%v: %d range(s) missing, retry %d/%d", ErrDownloadIncomplete, len(missing), e.downloadRetries, e.cfg.MaxRetries)
			e.requestedRanges = missing
			e.requestNextRange()
			return
		}
		if len(missing) > 0 {
			e.logger.Logf(LogErr, false, "finishDownload", 0,
				"%v: giving up after %d retries, committing incomplete settings", ErrDownloadIncomplete, e.downloadRetries)
		}
	}
	e.downloadMode = false
	e.enrolCompleted = true
	e.state = stateSettingsParsed
	e.SendCommand(CommandDLExit)
	e.SendCommand(CommandReqStatus)
}

// missingRanges returns the subset of downloadRanges any byte of
// which never arrived. The check is byte-granular: the download tiles
// several independent ranges onto the same page, and one landed chunk
// must not mask a timed-out neighbour.
func (e *Engine) missingRanges() []dlRange {
	var missing []dlRange
	for _, r := range e.downloadRanges {
		m := &e.mapMain
		if r.extended {
			m = &e.mapExtended
		}
		if !m.covered(r.page, r.offset, r.length) {
			missing = append(missing, r)
		}
	}
	return missing
}

// enterMonitoring moves SettingsParsed -> Monitoring, the terminal
// state reached once the first live status reply arrives. Status
// frames received in any earlier state update the model but never
// short-circuit the enrolment/download sequence.
func (e *Engine) enterMonitoring() {
	if e.state != stateSettingsParsed {
		return
	}
	e.state = stateMonitoring
}

// commsFailure is the fatal-timeout transition: the state machine
// returns to Idle, the queue is cleared, a communication-failure event
// is recorded against the panel zone (zone 0), and a re-enrol is
// triggered on the next Tick.
func (e *Engine) commsFailure(now time.Time) {
	e.zones[0].LastEvent = ZoneEventCommunicationFailure
	e.zones[0].LastEventTime = uint64(now.Unix())
	e.state = stateIdle
	e.q.Clear()
	e.lastSentCommand = nil
	e.retryCount = 0
	e.enrolCompleted = false
	e.downloadMode = false
	e.reenrollPending = true
}
