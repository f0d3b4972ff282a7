package domain

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

// Mode selects how FromLocalFile interprets what it reads.
type Mode int

const (
	ModeText Mode = iota
	ModeBinary
)

func (m Mode) String() string {
	if m == ModeBinary {
		return "binary"
	}
	return "text"
}

// File is pasteable content. The zero value is an empty text file.
// Content is never modified after construction; accessors hand out copies.
type File struct {
	content  []byte
	binary   bool
	filename string
}

// Filer is implemented by File and by every service-specific file type
// that embeds it.
type Filer interface {
	Base() File
}

func NewTextFile(content, filename string) File {
	return File{content: []byte(content), filename: filename}
}

func NewBinaryFile(content []byte, filename string) File {
	c := make([]byte, len(content))
	copy(c, content)
	return File{content: c, binary: true, filename: filename}
}

// FromLocalFile reads path as text or raw bytes. The filename is the base
// name of path.
func FromLocalFile(path string, mode Mode) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, errors.Wrapf(ErrNotFound, "local file %s", path)
		}
		return File{}, errors.Wrapf(err, "read %s", path)
	}
	name := filepath.Base(path)
	if mode == ModeBinary {
		return File{content: b, binary: true, filename: name}, nil
	}
	if !utf8.Valid(b) {
		return File{}, errors.Wrapf(ErrUnsupportedContent, "%s is not valid UTF-8 text", path)
	}
	return File{content: b, filename: name}, nil
}

func (f File) Base() File { return f }

func (f File) Bytes() []byte {
	c := make([]byte, len(f.content))
	copy(c, f.content)
	return c
}

// Text returns the content as a string. For binary files this is the raw
// bytes reinterpreted; use AsText to get a validated conversion.
func (f File) Text() string { return string(f.content) }

func (f File) IsBinary() bool   { return f.binary }
func (f File) Filename() string { return f.filename }

func (f File) WithFilename(name string) File {
	f.filename = name
	return f
}

// Len is the character count for text and the byte count for binary content.
func (f File) Len() int {
	if f.binary {
		return len(f.content)
	}
	return utf8.RuneCount(f.content)
}

func (f File) Equal(o File) bool {
	return f.filename == o.filename && bytes.Equal(f.content, o.content)
}

// AsText returns a text version of f. Binary content must decode as UTF-8;
// the result has any BOM stripped and is NFC-normalised.
func (f File) AsText() (File, error) {
	if !f.binary {
		return f, nil
	}
	if !utf8.Valid(f.content) {
		return File{}, errors.Wrapf(ErrUnsupportedContent, "%q is binary and not valid UTF-8", f.filename)
	}
	s, err := NormalizeText(f.content)
	if err != nil {
		return File{}, err
	}
	return File{content: []byte(s), filename: f.filename}, nil
}

// NormalizeText strips a leading UTF-8 byte order mark and applies NFC.
func NormalizeText(b []byte) (string, error) {
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrap(ErrUnsupportedContent, err.Error())
	}
	return norm.NFC.String(string(out)), nil
}
