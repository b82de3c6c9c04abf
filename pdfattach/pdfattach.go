// Package pdfattach embeds arbitrary files into PDF documents and reads them
// back out.
//
// A document written by this package is a bare catalog whose /Names dictionary
// has an /EmbeddedFiles name tree; it has no pages.  Embedding into a path that
// doesn't exist yet builds such a document from scratch.  Embedding into a
// path that already holds one scans its objects, adds a new name tree, filespec,
// and stream after them, and rewrites the whole file.  The new file is written
// atomically, so a failed run leaves any existing file untouched.
package pdfattach

import (
	"compress/zlib"
	"log"
	"os"
	"path/filepath"

	"github.com/juju/errgo"
	"golang.org/x/text/encoding/unicode"

	"github.com/rothskeller/pdfembed/pdfstruct"
)

// Options control how a file is embedded.
type Options struct {
	// Name is the file name stored in the document.  EmbedFile defaults it
	// to the base name of the embedded file's path.
	Name string
	// Overwrite builds a new document even when the output already exists.
	Overwrite bool
	// Compressor transforms the file contents.  The default is Flate at
	// zlib.DefaultCompression.
	Compressor Compressor
	// UnicodeNames adds a /UF entry holding the name as UTF-16BE to each
	// new filespec.  /F always holds the name's bytes as given.
	UnicodeNames bool
	// Logger receives warnings.  Nil discards them.
	Logger *log.Logger
}

// A Result describes a completed embedding.
type Result struct {
	Name     string // name stored in the document
	Size     int    // size of the file before compression
	Stored   int    // size of the stream data (the compressed size)
	Appended bool   // whether an existing document was extended
	Files    int    // number of files listed in the document afterwards
	Objects  int    // number of objects in the document
}

// EmbedFile embeds the file at path into the PDF at out, creating out or
// extending it.  If path doesn't exist the error's cause is ErrMissingInput,
// and out is not touched.
func EmbedFile(path, out string, opts Options) (res Result, err error) {
	var data, existing []byte

	if _, err = os.Stat(path); os.IsNotExist(err) {
		return res, errgo.WithCausef(err, ErrMissingInput, "file to embed %s does not exist", path)
	}
	if data, err = os.ReadFile(path); err != nil {
		return res, errgo.NoteMask(err, "reading file to embed", errgo.Any)
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(path)
	}
	if existing, err = os.ReadFile(out); os.IsNotExist(err) {
		existing = nil
	} else if err != nil {
		return res, errgo.NoteMask(err, "reading existing document", errgo.Any)
	}
	var doc []byte
	if doc, res, err = Embed(existing, opts.Name, data, opts); err != nil {
		return res, errgo.NoteMask(err, out, errgo.Any)
	}
	if err = writeFileAtomic(out, doc); err != nil {
		return res, errgo.NoteMask(err, "writing document", errgo.Any)
	}
	return res, nil
}

// Embed adds the file name, with contents data, to the document existing and
// returns the new document.  A nil existing (or Options.Overwrite) builds a new
// document.  An existing document this package didn't write yields an error
// whose cause is ErrMalformedDocument.
func Embed(existing []byte, name string, data []byte, opts Options) (doc []byte, res Result, err error) {
	var (
		f     = payload{name: name}
		objs  []pdfstruct.RawObject
		prior *existingDoc
		comp  = opts.Compressor
	)
	if comp == nil {
		comp = Flate{Level: zlib.DefaultCompression}
	}
	if existing != nil {
		if prior, err = parseExisting(existing); err != nil && !opts.Overwrite {
			return nil, res, err
		}
		if opts.Overwrite {
			if err != nil {
				logf(opts.Logger, "replacing a file that is not an embedded-file PDF: %s", err)
			}
			prior, err = nil, nil
		}
	}
	if f.compressed, err = comp.Compress(data); err != nil {
		return nil, res, errgo.NoteMask(err, "compressing "+name, errgo.Any)
	}
	if opts.UnicodeNames {
		if f.uf, err = unicodeName(name); err != nil {
			return nil, res, err
		}
	}
	res = Result{Name: name, Size: len(data), Stored: len(f.compressed), Files: 1}
	if prior != nil {
		objs = buildAppend(prior, f)
		res.Appended, res.Files = true, prior.count+1
	} else {
		objs = buildFresh(f)
	}
	res.Objects = len(objs)
	return pdfstruct.Serialize(objs), res, nil
}

// unicodeName returns name as a UTF-16BE hex string token with a byte order
// mark, the form PDF uses for text strings outside PDFDocEncoding.
func unicodeName(name string) (string, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	by, err := enc.Bytes([]byte(name))
	if err != nil {
		return "", errgo.Notef(err, "encoding %q as UTF-16", name)
	}
	return pdfstruct.EncodeHex(by), nil
}

// writeFileAtomic writes data to a temporary file next to path, then renames
// it over path.  On failure the temporary file is removed and path is left as
// it was.
func writeFileAtomic(path string, data []byte) (err error) {
	var tmp *os.File

	if tmp, err = os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*"); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if err = tmp.Sync(); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if err = tmp.Close(); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	return errgo.Mask(os.Rename(tmp.Name(), path), errgo.Any)
}

func logf(l *log.Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}
