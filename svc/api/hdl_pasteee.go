package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"superpaste/metrics"
	"superpaste/svc/cache"
	"superpaste/svc/util"
)

const (
	pasteeeMaxSections   = 5
	pasteeeDefaultSyntax = "autodetect"
)

type pasteeeSectionReq struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Syntax   string `json:"syntax"`
	Contents string `json:"contents"`
	Content  string `json:"content"`
}

type pasteeeCreateReq struct {
	Description string              `json:"description"`
	Encrypted   bool                `json:"encrypted"`
	Sections    []pasteeeSectionReq `json:"sections"`
}

type pasteeeCreateResp struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

type pasteeeSectionResp struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Syntax  string `json:"syntax"`
	Content string `json:"content"`
	Size    int    `json:"size"`
}

type pasteeePaste struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	Encrypted   bool                 `json:"encrypted"`
	Views       int                  `json:"views"`
	Created     string               `json:"created_at"`
	Sections    []pasteeeSectionResp `json:"sections"`
}

type pasteeeGetResp struct {
	Paste   pasteeePaste `json:"paste"`
	Success bool         `json:"success"`
}

type pasteeeErrResp struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func pasteEEErr(msg string) pasteeeErrResp {
	resp := pasteeeErrResp{}
	resp.Errors = append(resp.Errors, struct {
		Message string `json:"message"`
	}{msg})
	return resp
}

func (h *Hdl) CreatePasteEE(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	var req pasteeeCreateReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid paste.ee request")
		writeJSON(w, http.StatusBadRequest, pasteEEErr("Invalid request body."))
		return
	}
	if len(req.Sections) == 0 || len(req.Sections) > pasteeeMaxSections {
		writeJSON(w, http.StatusBadRequest, pasteEEErr("A paste holds between 1 and 5 sections."))
		return
	}
	files := make([]cache.StoredFile, len(req.Sections))
	for i, s := range req.Sections {
		content := s.Contents
		if content == "" {
			content = s.Content
		}
		if content == "" {
			writeJSON(w, http.StatusBadRequest, pasteEEErr("Section contents are required."))
			return
		}
		name := s.Name
		if name == "" {
			name = s.Filename
		}
		syntax := s.Syntax
		if syntax == "" {
			syntax = pasteeeDefaultSyntax
		}
		files[i] = cache.StoredFile{Content: []byte(norm.NFC.String(content)), Filename: name, Syntax: syntax}
	}
	id, err := util.GenKey(h.store.Exists)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate key")
		writeJSON(w, http.StatusInternalServerError, pasteEEErr("Internal error."))
		return
	}
	h.store.Set(r.Context(), id, cache.Entry{
		Dialect:     dialectPasteEE,
		Files:       files,
		Owner:       ownerFrom(r.Context()),
		Description: req.Description,
		Encrypted:   req.Encrypted,
	})
	metrics.EmuPastesStored.WithLabelValues(dialectPasteEE).Inc()
	log.Info().Str("id", id).Int("sections", len(files)).Msg("paste.ee paste stored")
	writeJSON(w, http.StatusCreated, pasteeeCreateResp{ID: id, Link: linkFor(r, id)})
}

func (h *Hdl) GetPasteEE(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "key")
	e, ok := h.store.Get(r.Context(), id)
	if !ok || e.Dialect != dialectPasteEE || e.Owner != ownerFrom(r.Context()) {
		writeJSON(w, http.StatusNotFound, pasteEEErr("Paste not found."))
		return
	}
	resp := pasteeeGetResp{
		Success: true,
		Paste: pasteeePaste{
			ID:          id,
			Description: e.Description,
			Encrypted:   e.Encrypted,
			Views:       e.Views,
			Created:     e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			Sections:    make([]pasteeeSectionResp, len(e.Files)),
		},
	}
	for i, f := range e.Files {
		resp.Paste.Sections[i] = pasteeeSectionResp{
			ID:      i + 1,
			Name:    f.Filename,
			Syntax:  f.Syntax,
			Content: string(f.Content),
			Size:    len(f.Content),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeletePasteEE removes a paste owned by the caller.
func (h *Hdl) DeletePasteEE(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "key")
	e, ok := h.store.Peek(id)
	if !ok || e.Dialect != dialectPasteEE || e.Owner != ownerFrom(r.Context()) {
		writeJSON(w, http.StatusNotFound, pasteEEErr("Paste not found."))
		return
	}
	h.store.Delete(id)
	hlog.FromRequest(r).Info().Str("id", id).Msg("paste.ee paste deleted")
	writeJSON(w, http.StatusOK, pasteeeDeleteResp{Success: true})
}

type pasteeeDeleteResp struct {
	Success bool `json:"success"`
}

func linkFor(r *http.Request, id string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/p/" + id
}
