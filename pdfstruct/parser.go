package pdfstruct

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// parser holds the state of a parse of one object out of an in-memory
// document.  Nested objects (array elements, dict values) get parsers of
// their own over the same data.
type parser struct {
	data   []byte
	pos    int
	accum  []byte
	parens int
}

type statefunc func(*parser) (statefunc, Object, error)

// parseObject parses the direct object that starts at pos, after any leading
// whitespace and comments.  It returns the object and the position just past
// its last byte.
func parseObject(data []byte, pos int) (obj Object, end int, err error) {
	p := &parser{data: data, pos: pos}
	state := stStart
	for state != nil {
		state, obj, err = state(p)
	}
	if err != nil {
		return nil, 0, err
	}
	return obj, p.pos, nil
}

var objHeaderRE = regexp.MustCompile(`^([0-9]+)[ \t\r\n\f\x00]+([0-9]+)[ \t\r\n\f\x00]+obj`)

// readIndirect reads the indirect object ("n g obj «object» endobj") whose
// header starts exactly at pos.  It returns the object's reference, its value,
// and the position just past the endobj keyword.
func readIndirect(data []byte, pos int) (ref Reference, obj Object, end int, err error) {
	var match = objHeaderRE.FindSubmatchIndex(data[pos:])

	if match == nil {
		return ref, nil, 0, errors.New(`expected "obj" header`)
	}
	ref.Number, _ = strconv.Atoi(string(data[pos+match[2] : pos+match[3]]))
	ref.Generation, _ = strconv.Atoi(string(data[pos+match[4] : pos+match[5]]))
	end = pos + match[1]
	if end < len(data) && isRegularChar(data[end]) {
		return ref, nil, 0, errors.New(`expected delimiter after "obj"`)
	}
	if obj, end, err = parseObject(data, end); err != nil {
		return ref, nil, 0, fmt.Errorf("object %d %d: %s", ref.Number, ref.Generation, err)
	}
	end = skipWhitespace(data, end)
	if !hasKeyword(data[end:], "endobj") {
		return ref, nil, 0, fmt.Errorf(`object %d %d: expected "endobj"`, ref.Number, ref.Generation)
	}
	return ref, obj, end + len("endobj"), nil
}

func stStart(p *parser) (statefunc, Object, error) {
	p.pos = skipWhitespace(p.data, p.pos)
	if err := p.need(1); err != nil {
		return nil, nil, err
	}
	switch p.data[p.pos] {
	case '(':
		p.skip(1)
		p.accum, p.parens = nil, 1
		return stString, nil, nil
	case '<':
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '<' {
			p.skip(2)
			return stDict, nil, nil
		}
		p.skip(1)
		p.accum = nil
		return stHex, nil, nil
	case '>':
		return nil, nil, errors.New("unexpected >")
	case '/':
		p.skip(1)
		p.accum = nil
		return stName, nil, nil
	case '[':
		p.skip(1)
		return stArray, nil, nil
	case ']':
		return nil, nil, errors.New("unexpected ]")
	case '-', '+', '.', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return stNumRef, nil, nil
	default:
		return stWord, nil, nil
	}
}

func stString(p *parser) (_ statefunc, _ Object, err error) {
	if err = p.need(1); err != nil {
		return nil, nil, err
	}
	var b = p.data[p.pos]
	p.skip(1)
	switch b {
	case '(':
		p.parens++
		p.accum = append(p.accum, b)
	case ')':
		p.parens--
		if p.parens == 0 {
			return nil, string(p.accum), nil
		}
		p.accum = append(p.accum, b)
	case '\\':
		return stStringEsc, nil, nil
	case '\r':
		// An unescaped end-of-line is always read as a single \n.
		if p.pos < len(p.data) && p.data[p.pos] == '\n' {
			p.skip(1)
		}
		p.accum = append(p.accum, '\n')
	default:
		p.accum = append(p.accum, b)
	}
	return stString, nil, nil
}

func stStringEsc(p *parser) (_ statefunc, _ Object, err error) {
	if err = p.need(1); err != nil {
		return nil, nil, err
	}
	var b = p.data[p.pos]
	p.skip(1)
	switch b {
	case 'n':
		p.accum = append(p.accum, '\n')
	case 'r':
		p.accum = append(p.accum, '\r')
	case 't':
		p.accum = append(p.accum, '\t')
	case 'b':
		p.accum = append(p.accum, '\b')
	case 'f':
		p.accum = append(p.accum, '\f')
	case '\r':
		if p.pos < len(p.data) && p.data[p.pos] == '\n' {
			p.skip(1)
		}
	case '\n':
		break
	case '0', '1', '2', '3', '4', '5', '6', '7':
		var code = b - '0'
		for i := 0; i < 2 && p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '7'; i++ {
			code = code*8 + p.data[p.pos] - '0'
			p.skip(1)
		}
		p.accum = append(p.accum, code)
	default:
		p.accum = append(p.accum, b)
	}
	return stString, nil, nil
}

func stHex(p *parser) (_ statefunc, _ Object, err error) {
	var (
		digits []byte
		hex    []byte
	)
	for {
		if err = p.need(1); err != nil {
			return nil, nil, err
		}
		b := p.data[p.pos]
		p.skip(1)
		if b == '>' {
			break
		}
		if strings.IndexByte(whitespaceChars, b) >= 0 {
			continue
		}
		if _, ok := hexValue(b); !ok {
			return nil, nil, errors.New("invalid character in hex string")
		}
		digits = append(digits, b)
	}
	// A final odd digit is read as if followed by a zero.
	if len(digits)%2 != 0 {
		digits = append(digits, '0')
	}
	hex = make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		hi, _ := hexValue(digits[i])
		lo, _ := hexValue(digits[i+1])
		hex = append(hex, hi<<4|lo)
	}
	return nil, hex, nil
}

func stName(p *parser) (_ statefunc, _ Object, err error) {
	for p.pos < len(p.data) && isRegularChar(p.data[p.pos]) {
		b := p.data[p.pos]
		if b != '#' {
			p.accum = append(p.accum, b)
			p.skip(1)
			continue
		}
		if err = p.need(3); err != nil {
			return nil, nil, err
		}
		hi, ok1 := hexValue(p.data[p.pos+1])
		lo, ok2 := hexValue(p.data[p.pos+2])
		if !ok1 || !ok2 {
			return nil, nil, errors.New("invalid character in hex escape in /Name")
		}
		p.accum = append(p.accum, hi<<4|lo)
		p.skip(3)
	}
	return nil, Name(p.accum), nil
}

func stWord(p *parser) (_ statefunc, _ Object, err error) {
	var rest = p.data[p.pos:]

	switch {
	case hasKeyword(rest, "null"):
		p.skip(4)
		return nil, nil, nil
	case hasKeyword(rest, "true"):
		p.skip(4)
		return nil, true, nil
	case hasKeyword(rest, "false"):
		p.skip(5)
		return nil, false, nil
	}
	return nil, nil, fmt.Errorf("unexpected bare word at offset %d", p.pos)
}

var refRE = regexp.MustCompile(`^([0-9]+)[ \t\r\n\f\x00]+([0-9]+)[ \t\r\n\f\x00]+R`)

func stNumRef(p *parser) (_ statefunc, _ Object, err error) {
	// We saw a character that is the start of a number.  It is either an
	// integer, a real number, or the first part of "n g R".  An "n g obj"
	// header is never valid here; readIndirect handles those.
	if match := refRE.FindSubmatchIndex(p.data[p.pos:]); match != nil {
		if end := p.pos + match[1]; end >= len(p.data) || !isRegularChar(p.data[end]) {
			var r Reference
			r.Number, _ = strconv.Atoi(string(p.data[p.pos+match[2] : p.pos+match[3]]))
			r.Generation, _ = strconv.Atoi(string(p.data[p.pos+match[4] : p.pos+match[5]]))
			p.pos = end
			return nil, r, nil
		}
	}
	var end = p.pos
	for end < len(p.data) && isRegularChar(p.data[end]) {
		end++
	}
	word := string(p.data[p.pos:end])
	if num, err := strconv.Atoi(word); err == nil {
		p.pos = end
		return nil, num, nil
	}
	if num, err := strconv.ParseFloat(word, 64); err == nil {
		p.pos = end
		return nil, num, nil
	}
	return nil, nil, fmt.Errorf("invalid numeric constant %q", word)
}

func stArray(p *parser) (_ statefunc, _ Object, err error) {
	var a = Array{}
	for {
		p.pos = skipWhitespace(p.data, p.pos)
		if err = p.need(1); err != nil {
			return nil, nil, err
		}
		if p.data[p.pos] == ']' {
			p.skip(1)
			return nil, a, nil
		}
		var obj Object
		if obj, p.pos, err = parseObject(p.data, p.pos); err != nil {
			return nil, nil, fmt.Errorf("reading array value at offset %d: %s", p.pos, err)
		}
		a = append(a, obj)
	}
}

func stDict(p *parser) (_ statefunc, _ Object, err error) {
	var d = make(Dict)
	for {
		p.pos = skipWhitespace(p.data, p.pos)
		if bytes.HasPrefix(p.data[p.pos:], []byte(">>")) {
			p.skip(2)
			break
		}
		var (
			obj Object
			key Name
			ok  bool
			at  = p.pos
		)
		if obj, p.pos, err = parseObject(p.data, p.pos); err != nil {
			return nil, nil, fmt.Errorf("reading /Name in dict at offset %d: %s", at, err)
		}
		if key, ok = obj.(Name); !ok {
			return nil, nil, fmt.Errorf("expected /Name in dict at offset %d", at)
		}
		if obj, p.pos, err = parseObject(p.data, p.pos); err != nil {
			return nil, nil, fmt.Errorf("reading value for /%s in dict at offset %d: %s", key, at, err)
		}
		d[key] = obj
	}
	// We've read the dict.  But maybe it's actually a stream?
	var kw = skipWhitespace(p.data, p.pos)
	if !bytes.HasPrefix(p.data[kw:], []byte("stream")) {
		return nil, d, nil
	}
	switch eol := p.data[kw+6:]; {
	case bytes.HasPrefix(eol, []byte("\r\n")):
		p.pos = kw + 8
	case bytes.HasPrefix(eol, []byte("\n")):
		p.pos = kw + 7
	default:
		return nil, d, nil
	}
	// The stream data is exactly /Length bytes long, whatever they contain.
	var size int
	switch i := d["Length"].(type) {
	case int:
		size = i
	case Reference:
		return nil, nil, errors.New("indirect stream /Length is not supported")
	default:
		return nil, nil, errors.New("invalid Length for stream")
	}
	if size < 0 {
		return nil, nil, errors.New("invalid Length for stream")
	}
	if err = p.need(size); err != nil {
		return nil, nil, err
	}
	var s = Stream{Dict: d, Data: p.data[p.pos : p.pos+size : p.pos+size]}
	p.skip(size)
	// Skip the end-of-line marker before "endstream".
	if bytes.HasPrefix(p.data[p.pos:], []byte("\r\n")) {
		p.skip(2)
	} else if p.pos < len(p.data) && (p.data[p.pos] == '\r' || p.data[p.pos] == '\n') {
		p.skip(1)
	}
	if !hasKeyword(p.data[p.pos:], "endstream") {
		return nil, nil, errors.New(`expected "endstream" at end of stream`)
	}
	p.skip(len("endstream"))
	return nil, s, nil
}

func (p *parser) need(size int) error {
	if len(p.data)-p.pos < size {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (p *parser) skip(size int) {
	p.pos += size
}

// skipWhitespace returns the position of the first byte at or after pos that
// is neither whitespace nor part of a comment.
func skipWhitespace(data []byte, pos int) int {
	for pos < len(data) {
		switch {
		case strings.IndexByte(whitespaceChars, data[pos]) >= 0:
			pos++
		case data[pos] == '%':
			idx := bytes.IndexAny(data[pos:], "\r\n")
			if idx < 0 {
				return len(data)
			}
			pos += idx
		default:
			return pos
		}
	}
	return pos
}

// hasKeyword returns whether by starts with the keyword kw, followed by a
// delimiter or by the end of the data.
func hasKeyword(by []byte, kw string) bool {
	if !bytes.HasPrefix(by, []byte(kw)) {
		return false
	}
	return len(by) == len(kw) || !isRegularChar(by[len(kw)])
}

func hexValue(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	}
	return 0, false
}

const (
	whitespaceChars = "\x00\t\n\f\r "
	nonRegularChars = "\x00\t\n\f\r ()<>[]{}/%"
)

func isRegularChar(b byte) bool {
	return strings.IndexByte(nonRegularChars, b) < 0
}
