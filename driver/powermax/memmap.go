package powermax

// memoryMap is a logical 256x256 byte sparse array mirroring one bank
// of panel EEPROM (m_mapMain / m_mapExtended in the original). Pages
// are allocated lazily on first write. Each page carries a per-byte
// written bitmap, so reads distinguish downloaded zeros from bytes no
// reply ever covered; the download phase requests several independent
// ranges per page, and a page must not count as present just because
// one of them landed.
type memoryMap struct {
	pages [256]*mapPage
}

type mapPage struct {
	data    [256]byte
	written [256 / 8]byte
}

func (p *mapPage) mark(off int) { p.written[off/8] |= 1 << uint(off%8) }

func (p *mapPage) isSet(off int) bool { return p.written[off/8]&(1<<uint(off%8)) != 0 }

// write copies data into the map starting at (page, offset), crossing
// into page+1, page+2, ... whenever offset+len(data) > 256. Pages are
// allocated on demand.
func (m *memoryMap) write(page, offset uint8, data []byte) {
	p, o := int(page), int(offset)
	for len(data) > 0 {
		if m.pages[p] == nil {
			m.pages[p] = new(mapPage)
		}
		pg := m.pages[p]
		n := copy(pg.data[o:], data)
		for i := o; i < o+n; i++ {
			pg.mark(i)
		}
		data = data[n:]
		o = 0
		p = (p + 1) % 256
	}
}

// read copies up to len(out) bytes starting at (page, offset) into
// out. It stops at the first byte that was never written, returning
// ok=false and the count of bytes successfully copied before that
// point.
func (m *memoryMap) read(page, offset uint8, out []byte) (n int, ok bool) {
	p, o := int(page), int(offset)
	for n < len(out) {
		pg := m.pages[p]
		if pg == nil {
			return n, false
		}
		for o < 256 && n < len(out) {
			if !pg.isSet(o) {
				return n, false
			}
			out[n] = pg.data[o]
			n++
			o++
		}
		o = 0
		p = (p + 1) % 256
	}
	return n, true
}

// covered reports whether every byte of the n-byte run starting at
// (page, offset) has been written.
func (m *memoryMap) covered(page, offset uint8, n int) bool {
	p, o := int(page), int(offset)
	for ; n > 0; n-- {
		pg := m.pages[p]
		if pg == nil || !pg.isSet(o) {
			return false
		}
		o++
		if o == 256 {
			o = 0
			p = (p + 1) % 256
		}
	}
	return true
}

// hasData reports whether page has ever been written to.
func (m *memoryMap) hasData(page uint8) bool {
	return m.pages[page] != nil
}
