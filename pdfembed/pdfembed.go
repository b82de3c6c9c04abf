// pdfembed embeds a file into a PDF, creating the PDF if needed.
//
//	usage: pdfembed [flags] file-to-embed output.pdf
//	       pdfembed -l output.pdf
//	       pdfembed -x dir output.pdf
//	       pdfembed -dump output.pdf
//	       pdfembed -get path output.pdf
//
// If output.pdf does not exist, it is created holding just the one file.  If it
// exists and was written by pdfembed, the file is added to the ones already
// there.  -l lists the embedded files, -x extracts them into dir, -dump
// prints every object in the document, and -get prints the objects at a
// slash-separated path from the catalog (or from the trailer, if the path starts
// with /).
package main

import (
	"compress/zlib"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/juju/errgo"

	"github.com/rothskeller/pdfembed/pdfattach"
	"github.com/rothskeller/pdfembed/pdfstruct"
)

func main() {
	var (
		opts    pdfattach.Options
		level   int
		list    bool
		extract string
		dump    bool
		quiet   bool
		get     string
	)
	flag.StringVar(&opts.Name, "name", "", "file name to store (default: base name of file-to-embed)")
	flag.BoolVar(&opts.Overwrite, "overwrite", false, "replace output.pdf instead of adding to it")
	flag.BoolVar(&opts.UnicodeNames, "unicode", false, "also store the name as a UTF-16 /UF entry")
	flag.IntVar(&level, "level", zlib.DefaultCompression, "zlib compression level (-1 to 9)")
	flag.BoolVar(&list, "l", false, "list the files embedded in the PDF")
	flag.StringVar(&extract, "x", "", "extract the files embedded in the PDF into `dir`")
	flag.BoolVar(&dump, "dump", false, "print every object in the PDF")
	flag.StringVar(&get, "get", "", "print the objects at `path`, e.g. Names/EmbeddedFiles/Names/*")
	flag.BoolVar(&quiet, "q", false, "don't print a status line")
	flag.Usage = usage
	flag.Parse()

	switch {
	case list || extract != "" || dump || get != "":
		if flag.NArg() != 1 {
			usage()
			os.Exit(2)
		}
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fail(err)
		}
		switch {
		case dump:
			err = dumpObjects(data)
		case get != "":
			err = inspect(os.Stdout, data, get)
		case extract != "":
			err = extractFiles(data, extract, quiet)
		default:
			err = listFiles(data)
		}
		if err != nil {
			fail(errgo.Notef(err, "%s", flag.Arg(0)))
		}
	default:
		if flag.NArg() != 2 {
			usage()
			os.Exit(2)
		}
		opts.Compressor = pdfattach.Flate{Level: level}
		if !quiet {
			opts.Logger = log.New(os.Stderr, "pdfembed: ", 0)
		}
		res, err := pdfattach.EmbedFile(flag.Arg(0), flag.Arg(1), opts)
		if err != nil {
			fail(err)
		}
		if !quiet {
			var verb = "Created"
			if res.Appended {
				verb = "Updated"
			}
			fmt.Printf("%s %s with embedded file '%s' (%d bytes).\n", verb, flag.Arg(1), res.Name, res.Size)
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: pdfembed [flags] file-to-embed output.pdf\n       pdfembed -l|-x dir|-dump|-get path output.pdf\n")
	flag.PrintDefaults()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
	if errgo.Cause(err) == pdfattach.ErrMissingInput {
		os.Exit(2)
	}
	os.Exit(1)
}

func listFiles(data []byte) error {
	atts, err := pdfattach.List(data)
	if err != nil {
		return err
	}
	for _, att := range atts {
		content, err := att.Data()
		if err != nil {
			return err
		}
		fmt.Printf("%8d %8d  %s\n", len(content), att.Stored, att.Name)
	}
	return nil
}

func extractFiles(data []byte, dir string, quiet bool) error {
	atts, err := pdfattach.List(data)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, att := range atts {
		path, err := att.SaveTo(dir)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Println(path)
		}
	}
	return nil
}

// dumpObjects prints each object in file order, as found by scanning rather
// than through the xref table, so it works on documents with a broken table.
func dumpObjects(data []byte) error {
	var cfg = spew.ConfigState{Indent: "    ", SortKeys: true, DisablePointerAddresses: true}

	objs, trailer, err := pdfstruct.ScanObjects(data)
	if err != nil {
		return err
	}
	for _, so := range objs {
		fmt.Printf("%d %d obj at offset %d\n", so.Number, so.Generation, so.Offset)
		if s, ok := so.Value.(pdfstruct.Stream); ok {
			if err := s.Decompress(); err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: object %d: %s\n", so.Number, err)
			}
			so.Value = s
		}
		cfg.Dump(so.Value)
	}
	fmt.Println("trailer")
	cfg.Dump(trailer)
	return nil
}
