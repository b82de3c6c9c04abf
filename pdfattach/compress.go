package pdfattach

import (
	"bytes"
	"compress/zlib"

	"github.com/juju/errgo"
)

// A Compressor transforms the contents of a file before they are stored in the
// document.  Embedded file streams are labeled /FlateDecode, so the output must
// be a zlib stream.  Compress must be deterministic and must return exactly the
// bytes to be stored.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Flate is a Compressor producing zlib streams at the given compression level.
// The zero Flate stores data without compressing it (zlib.NoCompression), still
// wrapped in valid zlib framing.
type Flate struct {
	Level int
}

// Compress implements Compressor.
func (f Flate) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw, err := zlib.NewWriterLevel(&buf, f.Level)
	if err != nil {
		return nil, errgo.Notef(err, "flate level %d", f.Level)
	}
	if _, err = zw.Write(data); err != nil {
		return nil, errgo.Mask(err)
	}
	if err = zw.Close(); err != nil {
		return nil, errgo.Mask(err)
	}
	return buf.Bytes(), nil
}
