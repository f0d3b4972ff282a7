package mystbin

import (
	"github.com/pkg/errors"

	"superpaste/pkg/domain"
	"superpaste/svc/util"
)

// MaxChars is the per-file character limit mystb.in enforces.
const MaxChars = 300_000

// File is a mystb.in file. The metadata fields are filled on retrieval and
// ignored on upload.
type File struct {
	domain.File
	ParentID         string
	LOC              int
	CharCount        int
	Annotation       string
	WarningPositions []int
}

// FilePayload is the upload shape of one file.
type FilePayload struct {
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
}

func NewFile(content, filename string) (File, error) {
	f := File{File: domain.NewTextFile(content, filename)}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// FromLocalFile loads path as text.
func FromLocalFile(path string) (File, error) {
	base, err := domain.FromLocalFile(path, domain.ModeText)
	if err != nil {
		return File{}, err
	}
	f := File{File: base}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f File) Payload() FilePayload {
	return FilePayload{Content: f.Text(), Filename: f.Filename()}
}

func (f File) validate() error {
	if n := f.Len(); n > MaxChars {
		return errors.Wrapf(domain.ErrContentTooLarge, "%q has %d characters, mystb.in allows %d", f.Filename(), n, MaxChars)
	}
	return nil
}

// native converts any Filer into a text File within the size limit.
func native(in domain.Filer) (File, error) {
	if domain.IsNil(in) {
		return File{}, errors.Wrap(domain.ErrInvalidArgument, "nil file")
	}
	var f File
	switch v := in.(type) {
	case File:
		f = v
	case *File:
		f = *v
	default:
		util.Warn().
			Str("backend", Name).
			Str("code", domain.ErrTypeMismatch.Code).
			Str("filename", in.Base().Filename()).
			Msgf("got non-native file %T, converting", in)
		f = File{File: in.Base()}
	}
	text, err := f.File.AsText()
	if err != nil {
		return File{}, err
	}
	f.File = text
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}
