package pdfattach

import (
	"bytes"
	"fmt"

	"github.com/rothskeller/pdfembed/pdfstruct"
)

// payload is one file, ready to be placed in a document.
type payload struct {
	name       string // file name as stored in /F and the name tree
	uf         string // /UF hex string token, or empty
	compressed []byte // stream data
}

// buildFresh returns the five objects of a new document holding one file.
// Numbering is fixed:  catalog 1, Names dictionary 2, name tree 3, filespec 4,
// embedded file stream 5.
func buildFresh(f payload) []pdfstruct.RawObject {
	return []pdfstruct.RawObject{
		object(1, "<< /Type /Catalog /Names 2 0 R >>"),
		object(2, "<< /EmbeddedFiles 3 0 R >>"),
		object(3, fmt.Sprintf("<< /Names [ %s 4 0 R ] >>", pdfstruct.EncodeLiteral(f.name))),
		filespec(4, f, 5),
		fileStream(5, f.compressed),
	}
}

// buildAppend returns the object table of prior with one more file.  Three new
// objects follow the prior ones:  a name tree n listing the prior entries and
// the new file, its filespec n+1, and the stream n+2, where n is the first
// unused object number.  The Names dictionary keeps its number and position
// but now points at tree n.  The superseded tree stays in the table,
// unreferenced, so that every prior object other than the Names dictionary is
// written out byte for byte as it was read.
func buildAppend(prior *existingDoc, f payload) []pdfstruct.RawObject {
	var (
		n    = prior.next
		objs = make([]pdfstruct.RawObject, 0, len(prior.objects)+3)
		list bytes.Buffer
	)
	for _, so := range prior.objects {
		if so.Number == prior.namesDict.Number {
			objs = append(objs, repoint(prior, n))
		} else {
			objs = append(objs, so.RawObject)
		}
	}
	if len(prior.entries) != 0 {
		list.Write(prior.entries)
		if endsInComment(prior.entries) {
			list.WriteByte('\n')
		} else {
			list.WriteByte(' ')
		}
	}
	fmt.Fprintf(&list, "%s %d 0 R", pdfstruct.EncodeLiteral(f.name), n+1)
	return append(objs,
		object(n, fmt.Sprintf("<< /Names [ %s ] >>", list.Bytes())),
		filespec(n+1, f, n+2),
		fileStream(n+2, f.compressed),
	)
}

// endsInComment returns whether the last line of entries might hold a comment,
// which would swallow anything written after it on the same line.  A % inside
// a string also counts; the only cost is a line break.
func endsInComment(entries []byte) bool {
	line := entries[bytes.LastIndexAny(entries, "\r\n")+1:]
	return bytes.IndexByte(line, '%') >= 0
}

// repoint returns the Names dictionary of prior with its /EmbeddedFiles value
// replaced by a reference to object tree.
func repoint(prior *existingDoc, tree int) pdfstruct.RawObject {
	var (
		old  = prior.namesDict.Data
		data = make([]byte, 0, len(old)+8)
	)
	data = append(data, old[:prior.efStart]...)
	data = fmt.Appendf(data, "%d 0 R", tree)
	data = append(data, old[prior.efEnd:]...)
	return pdfstruct.RawObject{Reference: prior.namesDict.Reference, Data: data}
}

func object(num int, body string) pdfstruct.RawObject {
	return pdfstruct.RawObject{
		Reference: pdfstruct.Reference{Number: num},
		Data:      []byte(fmt.Sprintf("%d 0 obj\n%s\nendobj\n", num, body)),
	}
}

func filespec(num int, f payload, stream int) pdfstruct.RawObject {
	var uf string
	if f.uf != "" {
		uf = " /UF " + f.uf
	}
	return object(num, fmt.Sprintf("<< /Type /Filespec /F %s%s /EF << /F %d 0 R >> >>",
		pdfstruct.EncodeLiteral(f.name), uf, stream))
}

// fileStream frames compressed as an embedded file stream.  /Length is the
// exact number of bytes between "stream\n" and "\nendstream".
func fileStream(num int, compressed []byte) pdfstruct.RawObject {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /EmbeddedFile /Filter /FlateDecode /Length %d >>\nstream\n", num, len(compressed))
	buf.Write(compressed)
	buf.WriteString("\nendstream\nendobj\n")
	return pdfstruct.RawObject{
		Reference: pdfstruct.Reference{Number: num},
		Data:      buf.Bytes(),
	}
}
