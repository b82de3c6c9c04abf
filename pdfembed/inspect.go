package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errgo"

	"github.com/rothskeller/pdfembed/pdfstruct"
)

// inspect prints the objects at path in the document, following the xref
// table.  path is a slash-separated list of Dict keys or Array indexes.  A
// leading / starts in the trailer; otherwise the path starts in the catalog.
// A "*" component lists every entry at that level.
func inspect(w io.Writer, data []byte, path string) (err error) {
	var (
		p     *pdfstruct.PDF
		parts = strings.Split(path, "/")
		in    = inspector{w: w}
	)
	if p, err = pdfstruct.Open(data); err != nil {
		return err
	}
	in.p = p
	if parts[0] == "" {
		return in.find(p.Info, "", parts[1:])
	}
	return in.find(p.Catalog, "/Root", parts)
}

type inspector struct {
	w io.Writer
	p *pdfstruct.PDF
}

func (in inspector) find(obj pdfstruct.Object, prefix string, path []string) (err error) {
	if len(path) == 0 || (len(path) == 1 && path[0] == "") {
		return in.dump(obj, prefix, 0)
	}
	if ref, ok := obj.(pdfstruct.Reference); ok {
		if obj, err = in.p.Get(ref); err != nil {
			return errgo.Notef(err, "%s: (#%d,%d)", prefix, ref.Number, ref.Generation)
		}
	}
	if s, ok := obj.(pdfstruct.Stream); ok {
		obj = s.Dict
	}
	switch obj := obj.(type) {
	case pdfstruct.Array:
		if path[0] == "*" {
			for i := range obj {
				if err = in.find(obj[i], fmt.Sprintf("%s/%d", prefix, i), path[1:]); err != nil {
					return err
				}
			}
			return nil
		}
		idx, err := strconv.Atoi(path[0])
		if err != nil || idx < 0 || idx >= len(obj) {
			return errgo.Newf("%s has %d elements; %q is not a valid index", prefix, len(obj), path[0])
		}
		return in.find(obj[idx], fmt.Sprintf("%s/%d", prefix, idx), path[1:])
	case pdfstruct.Dict:
		if path[0] == "*" {
			for _, key := range sortedKeys(obj) {
				if err = in.find(obj[key], fmt.Sprintf("%s/%s", prefix, key), path[1:]); err != nil {
					return err
				}
			}
			return nil
		}
		if val, ok := obj[pdfstruct.Name(path[0])]; ok {
			return in.find(val, prefix+"/"+path[0], path[1:])
		}
		return errgo.Newf("key %q does not exist in %s", path[0], prefix)
	default:
		return errgo.Newf("%s is a %T, not a Dict, Stream, or Array", prefix, obj)
	}
}

func (in inspector) dump(obj pdfstruct.Object, label string, indent int) (err error) {
	if ref, ok := obj.(pdfstruct.Reference); ok && indent == 0 {
		if obj, err = in.p.Get(ref); err != nil {
			return errgo.Notef(err, "%s: (#%d,%d)", label, ref.Number, ref.Generation)
		}
		fmt.Fprintf(in.w, "%s = (#%d,%d) -> ", label, ref.Number, ref.Generation)
	} else {
		fmt.Fprintf(in.w, "%s = ", label)
	}
	switch obj := obj.(type) {
	case nil:
		fmt.Fprintln(in.w, "null")
	case bool, int:
		fmt.Fprintf(in.w, "%v\n", obj)
	case float64:
		fmt.Fprintf(in.w, "%f\n", obj)
	case string:
		fmt.Fprintf(in.w, "%q\n", obj)
	case []byte:
		fmt.Fprintf(in.w, "<%s>\n", hex.EncodeToString(obj))
	case pdfstruct.Name:
		fmt.Fprintf(in.w, "/%s\n", string(obj))
	case pdfstruct.Reference:
		fmt.Fprintf(in.w, "(#%d,%d)\n", obj.Number, obj.Generation)
	case pdfstruct.Array:
		fmt.Fprintln(in.w, "[")
		for i := range obj {
			if err = in.dump(obj[i], fmt.Sprintf("%*s[%d]", indent*4+4, "", i), indent+1); err != nil {
				return err
			}
		}
		fmt.Fprintf(in.w, "%*s]\n", indent*4, "")
	case pdfstruct.Dict:
		fmt.Fprintln(in.w, "<<")
		if err = in.dumpDict(obj, indent); err != nil {
			return err
		}
		fmt.Fprintf(in.w, "%*s>>\n", indent*4, "")
	case pdfstruct.Stream:
		fmt.Fprintln(in.w, "stream <<")
		if err = in.dumpDict(obj.Dict, indent); err != nil {
			return err
		}
		fmt.Fprintf(in.w, "%*s>> %d bytes\n", indent*4, "", len(obj.Data))
	default:
		return errgo.Newf("%s: unknown object type %T", label, obj)
	}
	return nil
}

func (in inspector) dumpDict(d pdfstruct.Dict, indent int) error {
	for _, key := range sortedKeys(d) {
		if err := in.dump(d[key], fmt.Sprintf("%*s/%s", indent*4+4, "", key), indent+1); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(d pdfstruct.Dict) []pdfstruct.Name {
	var keys = make([]pdfstruct.Name, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
