package pdfstruct

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// xrefEntry is one entry in the merged cross-reference table.  An entry with
// inUse false is either on the free list or was never listed.
type xrefEntry struct {
	offset int
	gen    int
	inUse  bool
	listed bool
	cache  Object
}

// readXRef reads all of the cross reference sections from the PDF and builds a
// merged cross-reference table.
func (p *PDF) readXRef() (err error) {
	var (
		addr int
		seen = make(map[int]bool)
	)
	if err = p.readStartXRef(); err != nil {
		return fmt.Errorf(`reading "startxref": %s`, err)
	}
	addr = p.start
	for {
		if addr <= 0 || addr >= len(p.data) {
			return fmt.Errorf("xref section offset %d is outside the file", addr)
		}
		if seen[addr] {
			return fmt.Errorf("loop in /Prev chain at offset %d", addr)
		}
		seen[addr] = true
		var prev int
		if prev, err = p.readXRefTable(addr); err != nil {
			return fmt.Errorf("reading xref section at offset %d: %s", addr, err)
		}
		if prev == 0 {
			return nil
		}
		addr = prev
	}
}

var xrefAddrRE = regexp.MustCompile(`(?:\r|\n|\r\n)startxref(?:\r|\n|\r\n)(\d+)(?:\r|\n|\r\n)%%EOF(?:\r|\n|\r\n)?\s*$`)

// readStartXRef finds the "startxref" keyword at the end of the file and reads
// the integer on the line after it, which is the offset to the most recent
// cross reference section.
func (p *PDF) readStartXRef() error {
	var tail = p.data[max(0, len(p.data)-1024):]

	match := xrefAddrRE.FindSubmatch(tail)
	if match == nil {
		return errors.New(`no "startxref" found at end of file`)
	}
	p.start, _ = strconv.Atoi(string(match[1]))
	if p.start <= 0 || p.start >= len(p.data) {
		return fmt.Errorf("startxref offset %d is outside the file", p.start)
	}
	return nil
}

// readXRefTable reads the cross-reference table at addr, followed by its
// trailer.  Because sections are read newest first, entries already in the
// table are left alone.  It returns the /Prev address, or zero.
func (p *PDF) readXRefTable(addr int) (prev int, err error) {
	var line []byte

	if !hasKeyword(p.data[addr:], "xref") {
		return 0, errors.New("cross-reference streams are not supported")
	}
	addr = skipEOL(p.data, addr+len("xref"))
	// Repeat reading xref subsections until we see "trailer".
	for {
		addr = skipWhitespace(p.data, addr)
		if hasKeyword(p.data[addr:], "trailer") {
			addr += len("trailer")
			break
		}
		if idx := bytes.IndexAny(p.data[addr:], "\r\n"); idx >= 0 {
			line = p.data[addr : addr+idx]
		} else {
			return 0, fmt.Errorf(`missing "trailer" after offset %d`, addr)
		}
		if addr, err = p.readXRefSubsection(addr, line); err != nil {
			return 0, err
		}
	}
	// Read the trailer dictionary and merge its data into the PDF info,
	// except for the special-case keys.
	var obj Object
	if obj, _, err = parseObject(p.data, addr); err != nil {
		return 0, fmt.Errorf("reading trailer dict at offset %d: %s", addr, err)
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return 0, fmt.Errorf(`expected dict after "trailer" at offset %d`, addr)
	}
	for key, val := range trailer {
		switch key {
		case "Prev":
			if prev, ok = val.(int); !ok {
				return 0, fmt.Errorf("value of /Prev should be an integer in trailer dict at offset %d", addr)
			}
		case "XRefStm":
			return 0, errors.New("cross-reference streams are not supported")
		default:
			if _, ok := p.Info[key]; !ok {
				p.Info[key] = val
			}
		}
	}
	return prev, nil
}

// readXRefTableSubsection reads a single subsection of an xref table:  that
// is, a header line containing a starting object number and count, followed by
// count 20-byte entries.  It returns the address after the last entry.
func (p *PDF) readXRefSubsection(addr int, header []byte) (_ int, err error) {
	var start, count int

	if n, err := fmt.Sscanf(string(header), "%d %d", &start, &count); err != nil || n != 2 || start < 0 || count < 0 {
		return 0, fmt.Errorf("invalid cross-reference table section header at offset %d", addr)
	}
	addr = skipEOL(p.data, addr+len(header))
	if len(p.xref) < start+count {
		t := make([]xrefEntry, start+count)
		copy(t, p.xref)
		p.xref = t
	}
	for i := 0; i < count; i, addr = i+1, addr+20 {
		if addr+20 > len(p.data) {
			return 0, fmt.Errorf("cross-reference table truncated at offset %d", addr)
		}
		if p.xref[start+i].listed {
			continue
		}
		var (
			entry = p.data[addr : addr+20]
			xe    = xrefEntry{listed: true}
		)
		switch entry[17] {
		case 'n':
			xe.inUse = true
		case 'f':
			break
		default:
			return 0, fmt.Errorf("invalid cross-reference table entry at offset %d", addr)
		}
		if xe.offset, err = strconv.Atoi(string(entry[:10])); err != nil {
			return 0, fmt.Errorf("invalid cross-reference table entry at offset %d", addr)
		}
		if xe.gen, err = strconv.Atoi(string(entry[11:16])); err != nil {
			return 0, fmt.Errorf("invalid cross-reference table entry at offset %d", addr)
		}
		p.xref[start+i] = xe
	}
	return addr, nil
}

// skipEOL skips a single end-of-line marker at pos, if there is one.
func skipEOL(data []byte, pos int) int {
	if bytes.HasPrefix(data[pos:], []byte("\r\n")) {
		return pos + 2
	}
	if pos < len(data) && (data[pos] == '\r' || data[pos] == '\n') {
		return pos + 1
	}
	return pos
}
