package pdfstruct

import (
	"bytes"
	"errors"
	"fmt"
)

// A ScannedObject is an indirect object found by ScanObjects.
type ScannedObject struct {
	RawObject
	Offset int    // where the object header starts in the scanned data
	Value  Object // the parsed object
}

// ScanObjects walks an in-memory document from its first byte to its last and
// returns every indirect object in file order, each with its exact serialized
// bytes.  Stream payloads are skipped by their declared /Length, so binary data
// that happens to contain "endobj" cannot end an object early.  Cross-reference
// tables are stepped over; the last trailer dictionary seen is returned.
//
// The returned Data of each object ends with "endobj\n".  An object that ends
// the file without a newline gets one added.
func ScanObjects(data []byte) (objs []ScannedObject, trailer Dict, err error) {
	var pos int

	for {
		if pos = skipWhitespace(data, pos); pos >= len(data) {
			return objs, trailer, nil
		}
		switch rest := data[pos:]; {
		case objHeaderRE.Match(rest):
			var so = ScannedObject{Offset: pos}
			var end int
			if so.Reference, so.Value, end, err = readIndirect(data, pos); err != nil {
				return nil, nil, fmt.Errorf("reading object at offset %d: %s", pos, err)
			}
			if bytes.HasPrefix(data[end:], []byte("\r\n")) {
				end += 2
			} else if end < len(data) && (data[end] == '\n' || data[end] == '\r') {
				end++
			}
			so.Data = data[pos:end:end]
			if !bytes.HasSuffix(so.Data, []byte("\n")) {
				so.Data = append(bytes.TrimSuffix(bytes.Clone(so.Data), []byte("\r")), '\n')
			}
			objs = append(objs, so)
			pos = end
		case hasKeyword(rest, "xref"):
			var idx = bytes.Index(rest, []byte("trailer"))
			if idx < 0 {
				return nil, nil, fmt.Errorf(`no "trailer" after xref table at offset %d`, pos)
			}
			var (
				obj Object
				at  = pos + idx
			)
			if obj, pos, err = parseObject(data, at+len("trailer")); err != nil {
				return nil, nil, fmt.Errorf("reading trailer dict at offset %d: %s", at, err)
			}
			if dict, ok := obj.(Dict); ok {
				trailer = dict
			} else {
				return nil, nil, fmt.Errorf(`expected dict after "trailer" at offset %d`, at)
			}
		case hasKeyword(rest, "startxref"):
			if _, pos, err = parseObject(data, pos+len("startxref")); err != nil {
				return nil, nil, fmt.Errorf(`reading "startxref" offset: %s`, err)
			}
		default:
			return nil, nil, fmt.Errorf("unexpected data at offset %d", pos)
		}
	}
}

// ValueSpan locates key in the top-level dictionary of the serialized indirect
// object raw, and returns the byte range raw[start:end] holding its value,
// exactly as written.
func ValueSpan(raw []byte, key Name) (start, end int, err error) {
	var match = objHeaderRE.FindIndex(raw)

	if match == nil {
		return 0, 0, errors.New(`expected "obj" header`)
	}
	pos := skipWhitespace(raw, match[1])
	if !bytes.HasPrefix(raw[pos:], []byte("<<")) {
		return 0, 0, errors.New("object is not a dictionary")
	}
	pos += 2
	for {
		pos = skipWhitespace(raw, pos)
		if pos >= len(raw) || bytes.HasPrefix(raw[pos:], []byte(">>")) {
			return 0, 0, fmt.Errorf("no /%s entry in dictionary", key)
		}
		var obj Object
		if obj, pos, err = parseObject(raw, pos); err != nil {
			return 0, 0, err
		}
		name, ok := obj.(Name)
		if !ok {
			return 0, 0, fmt.Errorf("expected /Name in dict at offset %d", pos)
		}
		start = skipWhitespace(raw, pos)
		if _, end, err = parseObject(raw, start); err != nil {
			return 0, 0, fmt.Errorf("reading value for /%s: %s", name, err)
		}
		if name == key {
			return start, end, nil
		}
		pos = end
	}
}
