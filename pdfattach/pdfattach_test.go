package pdfattach

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/juju/errgo"
	"github.com/phpdave11/gofpdf"

	"github.com/rothskeller/pdfembed/pdfstruct"
)

func embed(t *testing.T, existing []byte, name string, data []byte, opts Options) ([]byte, Result) {
	t.Helper()
	doc, res, err := Embed(existing, name, data, opts)
	if err != nil {
		t.Fatalf("Embed(%q) failed: %s", name, errgo.Details(err))
	}
	return doc, res
}

func scan(t *testing.T, doc []byte) []pdfstruct.ScannedObject {
	t.Helper()
	objs, _, err := pdfstruct.ScanObjects(doc)
	if err != nil {
		t.Fatalf("ScanObjects failed: %v", err)
	}
	return objs
}

func objectData(t *testing.T, objs []pdfstruct.ScannedObject, num int) string {
	t.Helper()
	for _, so := range objs {
		if so.Number == num {
			return string(so.Data)
		}
	}
	t.Fatalf("Object %d not found", num)
	return ""
}

// xrefOffsets returns the offsets recorded in the xref table of doc, indexed
// by object number; free entries are -1.
func xrefOffsets(t *testing.T, doc []byte) []int {
	t.Helper()
	idx := bytes.LastIndex(doc, []byte("\nxref\n"))
	if idx < 0 {
		t.Fatal("No xref table found")
	}
	lines := strings.Split(string(doc[idx+len("\nxref\n"):]), "\n")
	var start, count int
	if _, err := fmt.Sscanf(lines[0], "%d %d", &start, &count); err != nil {
		t.Fatalf("Bad xref subsection header %q", lines[0])
	}
	offsets := make([]int, count)
	for i, line := range lines[1 : 1+count] {
		var off, gen int
		var kind string
		if _, err := fmt.Sscanf(line, "%d %d %s", &off, &gen, &kind); err != nil {
			t.Fatalf("Bad xref entry %q", line)
		}
		if kind == "n" {
			offsets[i] = off
		} else {
			offsets[i] = -1
		}
	}
	return offsets
}

// checkXRef verifies that every in-use xref entry points at the header of the
// object with its number.
func checkXRef(t *testing.T, doc []byte) {
	t.Helper()
	for num, off := range xrefOffsets(t, doc) {
		if off < 0 {
			continue
		}
		want := fmt.Sprintf("%d 0 obj", num)
		if !bytes.HasPrefix(doc[off:], []byte(want)) {
			t.Errorf("xref offset %d for object %d points at %q", off, num, doc[off:min(len(doc), off+12)])
		}
	}
}

func compressed(t *testing.T, data []byte) []byte {
	t.Helper()
	c, err := Flate{Level: zlib.DefaultCompression}.Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	return c
}

func TestEmbedFresh(t *testing.T) {
	doc, res := embed(t, nil, "hello.txt", []byte("hi"), Options{})
	objs := scan(t, doc)
	if len(objs) != 5 {
		t.Fatalf("Expected 5 objects, got %d", len(objs))
	}
	for i, so := range objs {
		if so.Number != i+1 {
			t.Errorf("Expected object %d at position %d, got %d", i+1, i, so.Number)
		}
	}
	c := compressed(t, []byte("hi"))
	expected := []string{
		"1 0 obj\n<< /Type /Catalog /Names 2 0 R >>\nendobj\n",
		"2 0 obj\n<< /EmbeddedFiles 3 0 R >>\nendobj\n",
		"3 0 obj\n<< /Names [ (hello.txt) 4 0 R ] >>\nendobj\n",
		"4 0 obj\n<< /Type /Filespec /F (hello.txt) /EF << /F 5 0 R >> >>\nendobj\n",
		fmt.Sprintf("5 0 obj\n<< /Type /EmbeddedFile /Filter /FlateDecode /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(c), c),
	}
	for i, want := range expected {
		if got := string(objs[i].Data); got != want {
			t.Errorf("Object %d: expected %q, got %q", i+1, want, got)
		}
	}
	offsets := xrefOffsets(t, doc)
	if want := bytes.Index(doc, []byte("3 0 obj")); offsets[3] != want {
		t.Errorf("Expected xref offset %d for object 3, got %d", want, offsets[3])
	}
	checkXRef(t, doc)
	if !bytes.HasPrefix(doc, []byte("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")) {
		t.Errorf("Unexpected header %q", doc[:15])
	}
	if !bytes.Contains(doc, []byte("trailer\n<< /Size 6 /Root 1 0 R >>\n")) {
		t.Error("Trailer not found")
	}
	if res.Name != "hello.txt" || res.Size != 2 || res.Stored != len(c) || res.Appended || res.Files != 1 || res.Objects != 5 {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestEmbedAppend(t *testing.T) {
	a, b := []byte("first file contents"), []byte{0, 1, 2, 0xFF, 'e', 'n', 'd'}
	doc1, _ := embed(t, nil, "a.bin", a, Options{})
	doc2, res := embed(t, doc1, "b.bin", b, Options{})
	objs1, objs2 := scan(t, doc1), scan(t, doc2)
	if len(objs2) != 8 {
		t.Fatalf("Expected 8 objects, got %d", len(objs2))
	}
	for i, so := range objs2 {
		if so.Number != i+1 {
			t.Errorf("Expected object %d at position %d, got %d", i+1, i, so.Number)
		}
	}
	// Everything but the Names dictionary is carried over unchanged.
	for _, num := range []int{1, 3, 4, 5} {
		if objectData(t, objs1, num) != objectData(t, objs2, num) {
			t.Errorf("Object %d changed:\n%s", num, spew.Sdump(objectData(t, objs2, num)))
		}
	}
	if got := objectData(t, objs2, 2); got != "2 0 obj\n<< /EmbeddedFiles 6 0 R >>\nendobj\n" {
		t.Errorf("Unexpected Names dictionary %q", got)
	}
	if got := objectData(t, objs2, 6); got != "6 0 obj\n<< /Names [ (a.bin) 4 0 R (b.bin) 7 0 R ] >>\nendobj\n" {
		t.Errorf("Unexpected name tree %q", got)
	}
	if got := objectData(t, objs2, 7); got != "7 0 obj\n<< /Type /Filespec /F (b.bin) /EF << /F 8 0 R >> >>\nendobj\n" {
		t.Errorf("Unexpected filespec %q", got)
	}
	checkXRef(t, doc2)
	if !res.Appended || res.Files != 2 || res.Objects != 8 {
		t.Errorf("Unexpected result %+v", res)
	}
	atts, err := List(doc2)
	if err != nil {
		t.Fatalf("List failed: %s", errgo.Details(err))
	}
	checkAttachments(t, atts, []string{"a.bin", "b.bin"}, [][]byte{a, b})
}

func TestEmbedAppendTwice(t *testing.T) {
	doc, _ := embed(t, nil, "a.bin", []byte("A"), Options{})
	doc, _ = embed(t, doc, "b.bin", []byte("B"), Options{})
	doc, res := embed(t, doc, "c (copy).txt", []byte("C"), Options{})
	objs := scan(t, doc)
	if len(objs) != 11 {
		t.Fatalf("Expected 11 objects, got %d", len(objs))
	}
	if got := objectData(t, objs, 2); got != "2 0 obj\n<< /EmbeddedFiles 9 0 R >>\nendobj\n" {
		t.Errorf("Unexpected Names dictionary %q", got)
	}
	if got := objectData(t, objs, 9); got != `9 0 obj
<< /Names [ (a.bin) 4 0 R (b.bin) 7 0 R (c \(copy\).txt) 10 0 R ] >>
endobj
` {
		t.Errorf("Unexpected name tree %q", got)
	}
	checkXRef(t, doc)
	if res.Files != 3 {
		t.Errorf("Expected 3 files, got %d", res.Files)
	}
	atts, err := List(doc)
	if err != nil {
		t.Fatalf("List failed: %s", errgo.Details(err))
	}
	checkAttachments(t, atts, []string{"a.bin", "b.bin", "c (copy).txt"}, [][]byte{[]byte("A"), []byte("B"), []byte("C")})
}

// identity stores data as is, so the test controls the exact stream bytes.
type identity struct{}

func (identity) Compress(data []byte) ([]byte, error) { return data, nil }

func TestEmbedAppendBinaryLooksLikeObjects(t *testing.T) {
	tricky := []byte("junk\nendobj\n9 0 obj\n<< /Names [ (fake) 1 0 R ] >>\nendobj\nxref\n")
	doc, _ := embed(t, nil, "tricky.bin", tricky, Options{Compressor: identity{}})
	doc, _ = embed(t, doc, "next.bin", []byte("x"), Options{Compressor: identity{}})
	objs := scan(t, doc)
	if len(objs) != 8 {
		t.Fatalf("Expected 8 objects, got %d", len(objs))
	}
	s, ok := objs[4].Value.(pdfstruct.Stream)
	if !ok || !bytes.Equal(s.Data, tricky) {
		t.Errorf("Stream 5 not preserved: %s", spew.Sdump(objs[4].Value))
	}
	if got := objectData(t, objs, 6); got != "6 0 obj\n<< /Names [ (tricky.bin) 4 0 R (next.bin) 7 0 R ] >>\nendobj\n" {
		t.Errorf("Unexpected name tree %q", got)
	}
	checkXRef(t, doc)
}

func TestEmbedEmptyFile(t *testing.T) {
	doc, res := embed(t, nil, "empty", nil, Options{})
	c := compressed(t, nil)
	if len(c) == 0 {
		t.Fatal("Expected compressed empty input to be non-empty")
	}
	if !bytes.Contains(doc, []byte(fmt.Sprintf("/Length %d >>", len(c)))) {
		t.Errorf("Expected /Length %d in document", len(c))
	}
	if res.Size != 0 || res.Stored != len(c) {
		t.Errorf("Unexpected result %+v", res)
	}
	atts, err := List(doc)
	if err != nil {
		t.Fatalf("List failed: %s", errgo.Details(err))
	}
	checkAttachments(t, atts, []string{"empty"}, [][]byte{{}})
}

func TestEmbedOverwrite(t *testing.T) {
	var logged bytes.Buffer
	opts := Options{Overwrite: true, Logger: log.New(&logged, "", 0)}
	doc, _ := embed(t, nil, "a.bin", []byte("A"), Options{})
	doc, _ = embed(t, doc, "b.bin", []byte("B"), Options{})
	doc, res := embed(t, doc, "a.bin", []byte("A"), opts)
	if objs := scan(t, doc); len(objs) != 5 {
		t.Errorf("Expected 5 objects after overwrite, got %d", len(objs))
	}
	if res.Appended || res.Files != 1 {
		t.Errorf("Unexpected result %+v", res)
	}
	doc, _ = embed(t, doc, "a.bin", []byte("A"), opts)
	if objs := scan(t, doc); len(objs) != 5 {
		t.Errorf("Expected 5 objects after second overwrite, got %d", len(objs))
	}
	if logged.Len() != 0 {
		t.Errorf("Unexpected warning %q", logged.String())
	}
}

func foreignPDF(t *testing.T) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, "no attachments here")
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("gofpdf Output failed: %v", err)
	}
	return buf.Bytes()
}

func TestEmbedMalformed(t *testing.T) {
	fresh, _ := embed(t, nil, "a.bin", []byte("A"), Options{})
	for name, existing := range map[string][]byte{
		"root not 1": []byte("%PDF-1.7\n" +
			"1 0 obj\n<< /EmbeddedFiles 2 0 R >>\nendobj\n" +
			"2 0 obj\n<< /Names [ (a) 3 0 R ] >>\nendobj\n" +
			"3 0 obj\n<< /Type /Filespec /F (a) /EF << /F 5 0 R >> >>\nendobj\n" +
			"4 0 obj\n<< /Type /Catalog /Names 1 0 R >>\nendobj\n" +
			"xref\n0 1\n0000000000 65535 f \ntrailer\n<< /Size 5 /Root 4 0 R >>\n"),
		"no catalog": []byte("%PDF-1.7\n" +
			"1 0 obj\n<< /EmbeddedFiles 2 0 R >>\nendobj\n" +
			"2 0 obj\n<< /Names [ (x) 3 0 R ] >>\nendobj\n"),
		"sparse":     append(bytes.Clone(fresh), "50000000 0 obj\nnull\nendobj\n"...),
		"object 0":   append(bytes.Clone(fresh), "0 0 obj\nnull\nendobj\n"...),
		"generation": bytes.Replace(fresh, []byte("/Names 2 0 R"), []byte("/Names 2 1 R"), 1),
		"text":    []byte("this is not a PDF"),
		"empty":   {},
		"shell":   pdfstruct.Serialize(nil),
		"foreign": foreignPDF(t),
		"kids":    []byte("%PDF-1.7\n1 0 obj\n<< /Names 2 0 R >>\nendobj\n2 0 obj\n<< /EmbeddedFiles 3 0 R >>\nendobj\n3 0 obj\n<< /Kids [ 4 0 R ] /Names [ ] >>\nendobj\n"),
		"odd":     []byte("%PDF-1.7\n1 0 obj\n<< /Names 2 0 R >>\nendobj\n2 0 obj\n<< /EmbeddedFiles 3 0 R >>\nendobj\n3 0 obj\n<< /Names [ (a) ] >>\nendobj\n"),
	} {
		_, _, err := Embed(existing, "x", []byte("x"), Options{})
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if errgo.Cause(err) != ErrMalformedDocument {
			t.Errorf("%s: expected ErrMalformedDocument, got %s", name, errgo.Details(err))
		}
	}
}

func TestEmbedOverwriteForeign(t *testing.T) {
	var logged bytes.Buffer
	doc, res := embed(t, foreignPDF(t), "x.txt", []byte("x"), Options{Overwrite: true, Logger: log.New(&logged, "", 0)})
	if objs := scan(t, doc); len(objs) != 5 {
		t.Errorf("Expected 5 objects, got %d", len(objs))
	}
	if res.Appended {
		t.Error("Expected a fresh document")
	}
	if !strings.Contains(logged.String(), "not an embedded-file PDF") {
		t.Errorf("Expected a warning, got %q", logged.String())
	}
}

func TestEmbedUnicodeNames(t *testing.T) {
	doc, _ := embed(t, nil, "résumé.txt", []byte("cv"), Options{UnicodeNames: true})
	if !bytes.Contains(doc, []byte("/UF <FEFF007200E900730075006D00E9002E007400780074>")) {
		t.Errorf("Expected /UF entry in %q", doc)
	}
	atts, err := List(doc)
	if err != nil {
		t.Fatalf("List failed: %s", errgo.Details(err))
	}
	checkAttachments(t, atts, []string{"résumé.txt"}, [][]byte{[]byte("cv")})
}

func TestParseExistingWithoutTrailer(t *testing.T) {
	data := []byte("%PDF-1.7\n" +
		"1 0 obj\n<< /Type /Catalog /Names 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /EmbeddedFiles 3 0 R >>\nendobj\n" +
		"3 0 obj\n<< /Names [ (x) 4 0 R ] >>\nendobj\n" +
		"4 0 obj\n<< /Type /Filespec /F (x) /EF << /F 5 0 R >> >>\nendobj\n" +
		"5 0 obj\nnull\nendobj")
	prior, err := parseExisting(data)
	if err != nil {
		t.Fatalf("parseExisting failed: %s", errgo.Details(err))
	}
	if prior.namesDict.Number != 2 || prior.tree.Number != 3 {
		t.Errorf("Expected Names dictionary 2 and tree 3, got %d and %d", prior.namesDict.Number, prior.tree.Number)
	}
	if string(prior.entries) != "(x) 4 0 R" {
		t.Errorf("Unexpected entries %q", prior.entries)
	}
	if prior.next != 6 || prior.count != 1 {
		t.Errorf("Expected next 6 and count 1, got %d and %d", prior.next, prior.count)
	}
}

func TestEmbedAppendAfterComment(t *testing.T) {
	data := []byte("%PDF-1.7\n" +
		"1 0 obj\n<< /Type /Catalog /Names 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /EmbeddedFiles 3 0 R >>\nendobj\n" +
		"3 0 obj\n<< /Names [ (a) 4 0 R % first file\n] >>\nendobj\n" +
		"4 0 obj\n<< /Type /Filespec /F (a) /EF << /F 5 0 R >> >>\nendobj\n" +
		"5 0 obj\nnull\nendobj\n")
	doc, _ := embed(t, data, "b", []byte("B"), Options{})
	objs := scan(t, doc)
	if got := objectData(t, objs, 6); got != "6 0 obj\n<< /Names [ (a) 4 0 R % first file\n(b) 7 0 R ] >>\nendobj\n" {
		t.Errorf("Unexpected name tree %q", got)
	}
	tree, _ := objs[5].Value.(pdfstruct.Dict)
	names, _ := tree["Names"].(pdfstruct.Array)
	if len(names) != 4 || names[2] != "b" || names[3] != (pdfstruct.Reference{Number: 7}) {
		t.Errorf("Unexpected /Names array %s", spew.Sdump(names))
	}
	checkXRef(t, doc)
}

func checkAttachments(t *testing.T, atts []*Attachment, names []string, contents [][]byte) {
	t.Helper()
	if len(atts) != len(names) {
		t.Fatalf("Expected %d attachments, got %d", len(names), len(atts))
	}
	for i, att := range atts {
		if att.Name != names[i] {
			t.Errorf("Attachment %d: expected name %q, got %q", i, names[i], att.Name)
		}
		data, err := att.Data()
		if err != nil {
			t.Errorf("Attachment %d: Data failed: %v", i, err)
			continue
		}
		if !bytes.Equal(data, contents[i]) {
			t.Errorf("Attachment %d: expected %q, got %q", i, contents[i], data)
		}
	}
}

func TestEmbedFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.pdf")
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	os.WriteFile(a, []byte("alpha"), 0644)
	os.WriteFile(b, []byte("beta"), 0644)

	res, err := EmbedFile(a, out, Options{})
	if err != nil {
		t.Fatalf("EmbedFile failed: %s", errgo.Details(err))
	}
	if res.Name != "a.txt" || res.Appended {
		t.Errorf("Unexpected result %+v", res)
	}
	if res, err = EmbedFile(b, out, Options{Name: "renamed.txt"}); err != nil {
		t.Fatalf("EmbedFile failed: %s", errgo.Details(err))
	}
	if res.Name != "renamed.txt" || !res.Appended || res.Files != 2 {
		t.Errorf("Unexpected result %+v", res)
	}
	doc, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	atts, err := List(doc)
	if err != nil {
		t.Fatalf("List failed: %s", errgo.Details(err))
	}
	checkAttachments(t, atts, []string{"a.txt", "renamed.txt"}, [][]byte{[]byte("alpha"), []byte("beta")})

	extract := filepath.Join(dir, "extract")
	os.Mkdir(extract, 0755)
	path, err := atts[1].SaveTo(extract)
	if err != nil {
		t.Fatalf("SaveTo failed: %s", errgo.Details(err))
	}
	if got, _ := os.ReadFile(path); string(got) != "beta" {
		t.Errorf("Expected saved contents %q, got %q", "beta", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 4 {
		t.Errorf("Expected 4 entries in %s, found %d", dir, len(entries))
	}
}

func TestEmbedFileMissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.pdf")
	_, err := EmbedFile(filepath.Join(dir, "nope"), out, Options{})
	if errgo.Cause(err) != ErrMissingInput {
		t.Fatalf("Expected ErrMissingInput, got %v", err)
	}
	if _, err = os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("Expected no output file, got %v", err)
	}
}

func TestEmbedFileLeavesMalformedOutputAlone(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.pdf")
	in := filepath.Join(dir, "in.txt")
	os.WriteFile(in, []byte("data"), 0644)
	os.WriteFile(out, []byte("garbage"), 0644)
	_, err := EmbedFile(in, out, Options{})
	if errgo.Cause(err) != ErrMalformedDocument {
		t.Fatalf("Expected ErrMalformedDocument, got %v", err)
	}
	if got, _ := os.ReadFile(out); string(got) != "garbage" {
		t.Errorf("Output file was modified: %q", got)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 2 {
		t.Errorf("Expected 2 entries in %s, found %d", dir, len(entries))
	}
}
