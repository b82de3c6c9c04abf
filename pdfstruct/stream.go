package pdfstruct

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// Decompress removes any compression from the stream data.  Only FlateDecode
// without predictors is supported, which covers every stream this module
// writes.  The stream's Dict is replaced with a copy lacking /Filter, so
// decompressing a stream returned by Get does not alter the cached original.
func (s *Stream) Decompress() error {
	var filters []Name

	switch flist := s.Dict["Filter"].(type) {
	case nil:
		return nil
	case Name:
		filters = []Name{flist}
	case Array:
		for _, n := range flist {
			if n, ok := n.(Name); ok {
				filters = append(filters, n)
			} else {
				return errors.New("stream /Filter entry is not a /Name")
			}
		}
	default:
		return errors.New("stream /Filter is not a /Name or array")
	}
	if _, ok := s.Dict["DecodeParms"]; ok {
		return errors.New("stream /DecodeParms is not supported")
	}
	var data = s.Data
	for _, filter := range filters {
		switch filter {
		case "FlateDecode":
			var err error
			if data, err = inflate(data); err != nil {
				return err
			}
		default:
			return fmt.Errorf("stream /Filter encoding /%s is not supported", filter)
		}
	}
	dict := make(Dict, len(s.Dict))
	for k, v := range s.Dict {
		if k != "Filter" {
			dict[k] = v
		}
	}
	s.Dict, s.Data = dict, data
	return nil
}

func inflate(data []byte) ([]byte, error) {
	dr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("running FlateDecode on stream: %s", err)
	}
	defer dr.Close()
	var buf bytes.Buffer
	if _, err = io.Copy(&buf, dr); err != nil {
		return nil, fmt.Errorf("running FlateDecode on stream: %s", err)
	}
	return buf.Bytes(), nil
}
