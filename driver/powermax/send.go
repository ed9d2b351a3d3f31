package powermax

import "time"

// queueCommand appends cmd to the send queue and, if the engine is
// currently idle (no command awaiting a reply), sends it immediately
// rather than waiting for the next Tick.
func (e *Engine) queueCommand(cmd queuedCommand) error {
	if err := e.q.Push(cmd); err != nil {
		return err
	}
	if e.lastSentCommand == nil && e.clock != nil {
		e.sendNextCommand(e.clock.Now())
	}
	return nil
}

// sendNextCommand drives the at-most-one-in-flight send queue
// (spec.md §4.5): first it resolves any in-flight command against its
// deadline (resending on timeout, declaring CommsFailure once retries
// are exhausted), then, if the engine is idle, it pops and transmits
// the next queued command.
func (e *Engine) sendNextCommand(now time.Time) {
	if e.lastSentCommand != nil {
		if now.Before(e.sendDeadline) {
			return
		}
		if e.retryCount < e.cfg.MaxRetries {
			e.retryCount++
			e.logger.Logf(LogWarning, false, "sendNextCommand", 0,
				"powermax: timeout sending %q, retry %d/%d",
				e.lastSentCommand.description, e.retryCount, e.cfg.MaxRetries)
			e.writeFrame(encodeFrame(e.lastSentCommand.bytes))
			e.sendDeadline = now.Add(e.cfg.PacketTimeout)
			return
		}
		e.logger.Logf(LogErr, false, "sendNextCommand", 0,
			"powermax: comms failure sending %q after %d retries",
			e.lastSentCommand.description, e.retryCount)
		e.commsFailure(now)
		return
	}

	cmd, ok := e.q.Pop()
	if !ok {
		return
	}
	e.patchPIN(&cmd)
	e.writeFrame(encodeFrame(cmd.bytes))
	e.retryCount = 0
	if cmd.expectedReply == 0 {
		// Fire-and-forget: nothing in the protocol ever replies to
		// this command, so it never occupies the in-flight slot.
		e.lastSentCommand = nil
		return
	}
	e.lastSentCommand = &cmd
	e.sendDeadline = now.Add(e.cfg.PacketTimeout)
}

// checkKeepAlive issues a RESTORE/REQSTATUS pair when the panel has
// gone quiet for KeepAliveInterval and the engine has nothing else
// outstanding, the host-driven analogue of the panel's own periodic
// status broadcast.
func (e *Engine) checkKeepAlive(now time.Time) {
	if e.state != stateMonitoring {
		return
	}
	if e.q.Count() > 0 || e.lastSentCommand != nil {
		return
	}
	if now.Sub(e.lastIOTime) < e.cfg.KeepAliveInterval {
		return
	}
	if now.Sub(e.lastPingTime) < e.cfg.KeepAliveInterval {
		return
	}
	e.lastPingTime = now
	e.SendCommand(CommandRestore)
	e.SendCommand(CommandReqStatus)
}

// patchPIN fills in cmd's PIN slot, if it has one, just before
// transmission: the fixed PowerLink enrolment PIN, or the installer/
// master installer PIN learned from the downloaded EEPROM image,
// selected by cmd.pinClass.
func (e *Engine) patchPIN(cmd *queuedCommand) {
	if cmd.pinOffset == 0 {
		return
	}
	var pin int
	switch {
	case cmd.useEnrollPIN:
		pin = e.cfg.EnrollPIN
	case cmd.pinClass == MasterPIN:
		pin, _ = e.config.MasterInstallerPINCode()
	default:
		pin = decimalPINCode(e.config.InstallerPIN)
	}
	hi, lo := bcdPIN(pin)
	if cmd.pinOffset+1 < len(cmd.bytes) {
		cmd.bytes[cmd.pinOffset] = hi
		cmd.bytes[cmd.pinOffset+1] = lo
	}
}

// decimalPINCode parses a 4-digit decimal PIN string into its packed
// integer form; a malformed or not-yet-known PIN patches as 0000.
func decimalPINCode(pin string) int {
	if len(pin) != 4 {
		return 0
	}
	n := 0
	for _, r := range pin {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// bcdPIN packs a 4-digit decimal PIN into the two-byte BCD form the
// panel's PIN slots expect, one digit per nibble.
func bcdPIN(pin int) (hi, lo byte) {
	d0, d1, d2, d3 := pin/1000%10, pin/100%10, pin/10%10, pin%10
	hi = byte(d0<<4 | d1)
	lo = byte(d2<<4 | d3)
	return hi, lo
}
