package pdfstruct

import (
	"bytes"
	"fmt"
	"sort"
)

// Header is the first two lines of every document Serialize writes:  the
// version line and a comment of high-bit bytes marking the file as binary.
const Header = "%PDF-1.7\n%\xE2\xE3\xCF\xD3\n"

// Serialize lays out a complete document holding objs, in order, followed by a
// cross-reference table and trailer.  The document catalog must be object 1.
//
// Each object's offset is the length of the output at the moment its bytes are
// appended, so every xref entry points at the first byte of its object's
// "n 0 obj" header.  Object numbers that appear in no object get free entries,
// which keeps each entry at the position matching its object number.
func Serialize(objs []RawObject) []byte {
	var (
		buf     bytes.Buffer
		offsets = make(map[int]xrefEntry, len(objs))
		size    = 1
	)
	buf.WriteString(Header)
	for _, obj := range objs {
		offsets[obj.Number] = xrefEntry{offset: buf.Len(), gen: obj.Generation, inUse: true}
		buf.Write(obj.Data)
		size = max(size, obj.Number+1)
	}
	xref := buf.Len()
	writeXRefTable(&buf, offsets, size)
	writeTrailer(&buf, size, xref)
	return buf.Bytes()
}

// writeXRefTable writes a single-subsection table covering objects 0 through
// size-1.  offsets maps each object number present to its entry.
func writeXRefTable(buf *bytes.Buffer, offsets map[int]xrefEntry, size int) {
	var free []int

	for n := 1; n < size; n++ {
		if _, ok := offsets[n]; !ok {
			free = append(free, n)
		}
	}
	// Free entries form a list starting at object 0 and linking back to it.
	next := func(n int) int {
		idx := sort.SearchInts(free, n+1)
		if idx < len(free) {
			return free[idx]
		}
		return 0
	}
	fmt.Fprintf(buf, "xref\n0 %d\n", size)
	fmt.Fprintf(buf, "%010d 65535 f \n", next(0))
	for n := 1; n < size; n++ {
		if entry, ok := offsets[n]; ok {
			fmt.Fprintf(buf, "%010d %05d n \n", entry.offset, entry.gen)
		} else {
			fmt.Fprintf(buf, "%010d 00001 f \n", next(n))
		}
	}
}

func writeTrailer(buf *bytes.Buffer, size, xref int) {
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R >>\n", size)
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xref)
}
