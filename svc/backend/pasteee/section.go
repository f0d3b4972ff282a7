package pasteee

import (
	"github.com/pkg/errors"

	"superpaste/pkg/domain"
	"superpaste/svc/util"
)

// DefaultSyntax lets paste.ee pick a highlighter.
const DefaultSyntax = "autodetect"

// Section is one file of a paste.ee paste. ID is only set on retrieval.
type Section struct {
	domain.File
	Syntax string
	ID     int
}

// SectionPayload is the upload shape of one section.
type SectionPayload struct {
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
	Syntax   string `json:"syntax,omitempty"`
}

func NewSection(content, filename, syntax string) Section {
	if syntax == "" {
		syntax = DefaultSyntax
	}
	return Section{File: domain.NewTextFile(content, filename), Syntax: syntax}
}

func (s Section) Payload() SectionPayload {
	return SectionPayload{Content: s.Text(), Filename: s.Filename(), Syntax: s.Syntax}
}

func native(in domain.Filer) (Section, error) {
	if domain.IsNil(in) {
		return Section{}, errors.Wrap(domain.ErrInvalidArgument, "nil file")
	}
	var s Section
	switch v := in.(type) {
	case Section:
		s = v
	case *Section:
		s = *v
	default:
		util.Warn().
			Str("backend", Name).
			Str("code", domain.ErrTypeMismatch.Code).
			Str("filename", in.Base().Filename()).
			Msgf("got non-native file %T, converting", in)
		s = Section{File: in.Base(), Syntax: DefaultSyntax}
	}
	text, err := s.File.AsText()
	if err != nil {
		return Section{}, err
	}
	s.File = text
	return s, nil
}
