// Package pdfstruct provides methods for reading and writing the basic
// structure of a PDF.  It doesn't understand the semantics of the PDF at all;
// it just knows how to tokenize objects, locate them through the
// cross-reference table, scan them out of a file in order, and lay a set of
// serialized objects out as a complete document.
package pdfstruct

import (
	"bytes"
	"errors"
	"fmt"
)

// An Object is an object as defined by the PDF specification.  While an Object
// is defined as "any", it will in fact be one of the following:
//   - nil (a null object)
//   - bool
//   - int
//   - float64
//   - string
//   - []byte (a hex string)
//   - Name
//   - Array
//   - Dict
//   - Stream
//   - Reference
type Object any

// A Name is a PDF/Postscript name, without the leading slash.
type Name string

// An Array is an array of objects.
type Array []Object

// A Dict is a map from Name to Object.
type Dict map[Name]Object

// A Stream is a Dict followed by a block of arbitrary data.  Stream data is
// returned exactly as stored; call Decompress to remove its filters.
type Stream struct {
	Dict Dict
	Data []byte
}

// A Reference is an indirect reference to an Object.
type Reference struct {
	Number     int
	Generation int
}

// A RawObject is a serialized indirect object:  the bytes from its "n g obj"
// header through the "endobj" keyword and the newline that ends it.  RawObjects
// are never modified once created.
type RawObject struct {
	Reference
	Data []byte
}

// A PDF is an in-memory PDF file opened for random access through its
// cross-reference table.
type PDF struct {
	data    []byte
	start   int
	xref    []xrefEntry
	Info    Dict
	Catalog Dict
}

// Open opens an in-memory PDF file.  It reads the cross-reference table(s) and
// the document catalog; other objects are read on demand by Get.
func Open(data []byte) (p *PDF, err error) {
	p = &PDF{data: data, Info: make(Dict)}
	if err = p.verifySignature(); err != nil {
		return nil, err
	}
	if err = p.readXRef(); err != nil {
		return nil, err
	}
	switch root := p.Info["Root"].(type) {
	case Reference:
		var catalog Dict
		if catalog, err = p.GetDict(root); err != nil {
			return nil, fmt.Errorf("reading document catalog: %s", err)
		}
		p.Catalog = catalog
	default:
		return nil, fmt.Errorf("document Root is %T, not Reference", root)
	}
	return p, nil
}

// Size returns the number of entries in the cross-reference table, including
// the free entry for object zero.
func (p *PDF) Size() int {
	return len(p.xref)
}

func (p *PDF) verifySignature() error {
	if !bytes.HasPrefix(p.data, []byte("%PDF-")) {
		return errors.New("not a PDF file")
	}
	return nil
}
