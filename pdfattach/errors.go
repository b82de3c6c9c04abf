package pdfattach

import "github.com/juju/errgo"

// Error causes returned by this package.  Test for them with errgo.Cause.
var (
	// ErrMissingInput is the cause when the file to embed does not exist.
	// It is detected before any output is produced.
	ErrMissingInput = errgo.New("file to embed does not exist")

	// ErrMalformedDocument is the cause when the output file already
	// exists but does not hold the catalog, name tree, and filespec
	// objects this package writes, so a file cannot be appended to it.
	ErrMalformedDocument = errgo.New("existing document is not an embedded-file PDF")
)

func malformed(err error, format string, args ...any) error {
	return errgo.WithCausef(err, ErrMalformedDocument, format, args...)
}
