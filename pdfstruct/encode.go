package pdfstruct

import (
	"encoding/hex"
	"strings"
)

// EncodeLiteral returns s as a PDF literal string token, with backslashes and
// parentheses escaped.  Backslashes are escaped first, so the backslashes added
// in front of parentheses are not themselves doubled.  Bytes outside ASCII
// (including UTF-8 sequences) are written as-is.
func EncodeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `(`, `\(`)
	s = strings.ReplaceAll(s, `)`, `\)`)
	return "(" + s + ")"
}

// EncodeHex returns by as a PDF hex string token.
func EncodeHex(by []byte) string {
	return "<" + strings.ToUpper(hex.EncodeToString(by)) + ">"
}
