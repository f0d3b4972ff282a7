package pasteee

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superpaste/pkg/domain"
	"superpaste/svc/api"
	"superpaste/svc/api/apitest"
	"superpaste/svc/transport"
)

const testToken = "pe-token"

func newBackend(t *testing.T) (*Backend, *apitest.Emulator) {
	t.Helper()
	emu := apitest.New(t, 0, api.WithToken(testToken))
	return New(testToken, transport.WithBaseURL(emu.URL)), emu
}

func TestHeaders(t *testing.T) {
	b := New(testToken)
	h := b.Headers()
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(testToken+":"))
	assert.Equal(t, want, h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "https://api.paste.ee", b.BaseURL())
	assert.Equal(t, 5, b.MaxFiles())
}

func TestCreateAndGetSections(t *testing.T) {
	b, emu := newBackend(t)
	results, err := b.CreatePasteWithOptions(context.Background(),
		CreateOptions{Description: "demo"},
		NewSection("package main", "main.go", "go"),
		NewSection("plain", "", ""))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, emu.URL+"/p/"+results[0].Key, results[0].URL)

	sections, err := b.GetSections(context.Background(), results[0].Key)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "package main", sections[0].Text())
	assert.Equal(t, "main.go", sections[0].Filename())
	assert.Equal(t, "go", sections[0].Syntax)
	assert.Equal(t, 1, sections[0].ID)
	assert.Equal(t, DefaultSyntax, sections[1].Syntax)
	assert.Equal(t, 2, sections[1].ID)

	files, err := b.GetPaste(context.Background(), results[0].Key)
	require.NoError(t, err)
	assert.Equal(t, "plain", files[1].Text())
}

func TestElevenSectionsBecomeThreePastes(t *testing.T) {
	b, emu := newBackend(t)
	files := make([]domain.Filer, 11)
	for i := range files {
		files[i] = NewSection(fmt.Sprintf("s%d", i), "", "")
	}
	results, err := b.CreatePaste(context.Background(), files...)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 3, emu.Count("POST /v1/pastes"))

	last, err := b.GetPaste(context.Background(), results[2].Key)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "s10", last[0].Text())
}

func TestBadTokenIsUnauthorized(t *testing.T) {
	emu := apitest.New(t, 0, api.WithToken(testToken))
	b := New("nope", transport.WithBaseURL(emu.URL))
	_, err := b.CreatePaste(context.Background(), NewSection("x", "", ""))
	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusUnauthorized, ue.Status)
}

func TestBinaryRejectedBeforeAnyRequest(t *testing.T) {
	b, emu := newBackend(t)
	_, err := b.CreatePaste(context.Background(),
		NewSection("ok", "", ""),
		domain.NewBinaryFile([]byte{0xc3, 0x28}, "bad.bin"))
	assert.True(t, errors.Is(err, domain.ErrUnsupportedContent))
	assert.Equal(t, 0, emu.Count("POST /v1/pastes"))
}

func TestNonNativeFileGetsDefaultSyntax(t *testing.T) {
	s, err := native(domain.NewTextFile("x", "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSyntax, s.Syntax)
	assert.Equal(t, SectionPayload{Content: "x", Filename: "x.txt", Syntax: DefaultSyntax}, s.Payload())
}

func TestNoFiles(t *testing.T) {
	b, _ := newBackend(t)
	_, err := b.CreatePaste(context.Background())
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestNilSectionRejected(t *testing.T) {
	b, emu := newBackend(t)
	var missing *Section
	for _, f := range []domain.Filer{nil, missing} {
		_, err := b.CreatePaste(context.Background(), NewSection("ok", "", ""), f)
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	}
	assert.Equal(t, 0, emu.Count("POST /v1/pastes"))
}

func TestGetMissing(t *testing.T) {
	b, _ := newBackend(t)
	_, err := b.GetPaste(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPastesAreScopedToTheirToken(t *testing.T) {
	emu := apitest.New(t, 0, api.WithToken(testToken), api.WithToken("other-token"))
	mine := New(testToken, transport.WithBaseURL(emu.URL))
	theirs := New("other-token", transport.WithBaseURL(emu.URL))

	results, err := mine.CreatePaste(context.Background(), NewSection("private", "", ""))
	require.NoError(t, err)
	key := results[0].Key

	_, err = theirs.GetPaste(context.Background(), key)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	err = theirs.DeletePaste(context.Background(), key)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	files, err := mine.GetPaste(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "private", files[0].Text())
}

func TestDeletePaste(t *testing.T) {
	b, emu := newBackend(t)
	results, err := b.CreatePaste(context.Background(), NewSection("gone soon", "", ""))
	require.NoError(t, err)
	key := results[0].Key

	require.NoError(t, b.DeletePaste(context.Background(), key))
	assert.Equal(t, 1, emu.Count("DELETE /v1/pastes/{key}"))

	_, err = b.GetPaste(context.Background(), key)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	err = b.DeletePaste(context.Background(), key)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.True(t, errors.Is(b.DeletePaste(context.Background(), ""), domain.ErrInvalidArgument))
}
