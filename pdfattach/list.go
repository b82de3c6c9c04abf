package pdfattach

import (
	"path/filepath"
	"strings"

	"github.com/juju/errgo"
	"golang.org/x/text/encoding/unicode"

	"github.com/rothskeller/pdfembed/pdfstruct"
)

// An Attachment is a file embedded in a PDF.
type Attachment struct {
	Name   string              // preferred file name
	Key    string              // the name tree key it is listed under
	Stream pdfstruct.Reference // its embedded file stream
	Stored int                 // size of the stream data as stored

	stream pdfstruct.Stream
}

// Data returns the contents of the attachment, with any compression removed.
func (a *Attachment) Data() ([]byte, error) {
	var s = a.stream

	if err := s.Decompress(); err != nil {
		return nil, errgo.Notef(err, "attachment %q", a.Name)
	}
	return s.Data, nil
}

// SaveTo writes the attachment into dir under the last element of its name,
// and returns the path written.
func (a *Attachment) SaveTo(dir string) (path string, err error) {
	var data []byte

	base := filepath.Base(filepath.FromSlash(strings.ReplaceAll(a.Name, `\`, "/")))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", errgo.Newf("attachment name %q is not usable as a file name", a.Name)
	}
	if data, err = a.Data(); err != nil {
		return "", err
	}
	path = filepath.Join(dir, base)
	if err = writeFileAtomic(path, data); err != nil {
		return "", errgo.NoteMask(err, "saving "+path, errgo.Any)
	}
	return path, nil
}

// List returns the files embedded in the document, in name tree order.  The
// document is read through its cross-reference table, so List also fails on a
// document whose xref offsets are wrong.
func List(data []byte) (atts []*Attachment, err error) {
	var (
		p    *pdfstruct.PDF
		obj  pdfstruct.Object
		dict pdfstruct.Dict
		ok   bool
	)
	if p, err = pdfstruct.Open(data); err != nil {
		return nil, errgo.Notef(err, "opening document")
	}
	switch obj, err = p.Resolve(p.Catalog["Names"]); {
	case err != nil:
		return nil, errgo.Notef(err, "reading /Names")
	case obj == nil:
		return nil, nil
	}
	if dict, ok = obj.(pdfstruct.Dict); !ok {
		return nil, errgo.Newf("/Names is %T, not Dict", obj)
	}
	switch obj, err = p.Resolve(dict["EmbeddedFiles"]); {
	case err != nil:
		return nil, errgo.Notef(err, "reading /Names/EmbeddedFiles")
	case obj == nil:
		return nil, nil
	}
	if dict, ok = obj.(pdfstruct.Dict); !ok {
		return nil, errgo.Newf("/Names/EmbeddedFiles is %T, not Dict", obj)
	}
	if err = walkTree(p, dict, &atts, 0); err != nil {
		return nil, err
	}
	return atts, nil
}

// maxTreeDepth bounds recursion through /Kids.
const maxTreeDepth = 32

// walkTree adds the attachments listed in the name tree node, and in its
// descendants, to atts.
func walkTree(p *pdfstruct.PDF, node pdfstruct.Dict, atts *[]*Attachment, depth int) (err error) {
	if depth > maxTreeDepth {
		return errgo.New("name tree is too deep")
	}
	if names, ok := node["Names"].(pdfstruct.Array); ok {
		for i := 0; i+1 < len(names); i += 2 {
			key, _ := names[i].(string)
			var att *Attachment
			if att, err = attachment(p, key, names[i+1]); err != nil {
				return errgo.Notef(err, "/Names[%d]", i+1)
			}
			*atts = append(*atts, att)
		}
	}
	kids, _ := node["Kids"].(pdfstruct.Array)
	for i, kid := range kids {
		var obj pdfstruct.Object
		if obj, err = p.Resolve(kid); err != nil {
			return errgo.Notef(err, "/Kids[%d]", i)
		}
		dict, ok := obj.(pdfstruct.Dict)
		if !ok {
			return errgo.Newf("/Kids[%d] is %T, not Dict", i, obj)
		}
		if err = walkTree(p, dict, atts, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// attachment reads the filespec spec, listed in the name tree under key.
func attachment(p *pdfstruct.PDF, key string, spec pdfstruct.Object) (att *Attachment, err error) {
	var (
		obj  pdfstruct.Object
		fs   pdfstruct.Dict
		ef   pdfstruct.Dict
		ok   bool
		sref pdfstruct.Reference
	)
	if obj, err = p.Resolve(spec); err != nil {
		return nil, err
	}
	if fs, ok = obj.(pdfstruct.Dict); !ok {
		return nil, errgo.Newf("filespec is %T, not Dict", obj)
	}
	att = &Attachment{Name: key, Key: key}
	if f, ok := fs["F"].(string); ok {
		att.Name = f
	}
	if uf, ok := fs["UF"]; ok {
		if name, err := decodeText(uf); err == nil && name != "" {
			att.Name = name
		}
	}
	if obj, err = p.Resolve(fs["EF"]); err != nil {
		return nil, errgo.Notef(err, "reading /EF")
	}
	if ef, ok = obj.(pdfstruct.Dict); !ok {
		return nil, errgo.Newf("/EF is %T, not Dict", obj)
	}
	for _, k := range []pdfstruct.Name{"UF", "F"} {
		if sref, ok = ef[k].(pdfstruct.Reference); ok {
			break
		}
	}
	if !ok {
		return nil, errgo.New("/EF has no stream reference")
	}
	if att.stream, err = p.GetStream(sref); err != nil {
		return nil, errgo.Notef(err, "reading embedded file stream")
	}
	att.Stream, att.Stored = sref, len(att.stream.Data)
	return att, nil
}

// decodeText decodes a PDF text string.  Strings starting with the UTF-16BE
// byte order mark are converted to UTF-8; others are returned as they are.
func decodeText(obj pdfstruct.Object) (string, error) {
	var raw []byte

	switch s := obj.(type) {
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	default:
		return "", errgo.Newf("text string is %T", obj)
	}
	if len(raw) < 2 || raw[0] != 0xFE || raw[1] != 0xFF {
		return string(raw), nil
	}
	dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", errgo.Notef(err, "decoding UTF-16 text string")
	}
	return string(out), nil
}
