package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"superpaste/metrics"
	"superpaste/svc/cache"
	"superpaste/svc/util"
)

const (
	mystbinMaxFiles = 5
	mystbinMaxChars = 300_000
)

type mystbinFileReq struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

type mystbinCreateReq struct {
	Files    []mystbinFileReq `json:"files"`
	Expires  string           `json:"expires"`
	Password string           `json:"password"`
}

type mystbinCreateResp struct {
	ID        string  `json:"id"`
	CreatedAt string  `json:"created_at"`
	Expires   *string `json:"expires"`
	Safety    string  `json:"safety"`
	Views     int     `json:"views"`
}

type mystbinFileResp struct {
	ParentID         string `json:"parent_id"`
	Content          string `json:"content"`
	Filename         string `json:"filename"`
	LOC              int    `json:"loc"`
	CharCount        int    `json:"charcount"`
	Annotation       string `json:"annotation"`
	WarningPositions []int  `json:"warning_positions"`
}

type mystbinGetResp struct {
	ID          string            `json:"id"`
	CreatedAt   string            `json:"created_at"`
	Expires     *string           `json:"expires"`
	Views       int               `json:"views"`
	HasPassword bool              `json:"has_password"`
	Files       []mystbinFileResp `json:"files"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (h *Hdl) CreateMystbin(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	var req mystbinCreateReq
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err := dec.Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid mystbin request")
		writeJSON(w, http.StatusBadRequest, errorResp{"invalid request body"})
		return
	}
	if len(req.Files) == 0 || len(req.Files) > mystbinMaxFiles {
		writeJSON(w, http.StatusBadRequest, errorResp{"a paste holds between 1 and 5 files"})
		return
	}
	now := time.Now().UTC()
	var expires time.Time
	if req.Expires != "" {
		t, err := time.Parse(time.RFC3339, req.Expires)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{"expires must be an ISO 8601 timestamp"})
			return
		}
		if !t.After(now) {
			writeJSON(w, http.StatusBadRequest, errorResp{"expires must be in the future"})
			return
		}
		expires = t.UTC()
	}
	files := make([]cache.StoredFile, len(req.Files))
	for i, f := range req.Files {
		content := norm.NFC.String(f.Content)
		if utf8.RuneCountInString(content) > mystbinMaxChars {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp{"file content exceeds 300000 characters"})
			return
		}
		files[i] = cache.StoredFile{Content: []byte(content), Filename: f.Filename}
	}
	if len(req.Password) > 72 {
		writeJSON(w, http.StatusBadRequest, errorResp{"password too long"})
		return
	}
	var hash []byte
	if req.Password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
		if err != nil {
			log.Error().Err(err).Msg("failed to hash paste password")
			writeJSON(w, http.StatusInternalServerError, errorResp{"internal server error"})
			return
		}
	}
	id, err := util.GenKey(h.store.Exists)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate key")
		writeJSON(w, http.StatusInternalServerError, errorResp{"internal server error"})
		return
	}
	h.store.Set(r.Context(), id, cache.Entry{
		Dialect:      dialectMystbin,
		Files:        files,
		PasswordHash: hash,
		CreatedAt:    now,
		ExpiresAt:    expires,
	})
	metrics.EmuPastesStored.WithLabelValues(dialectMystbin).Inc()
	log.Info().
		Str("id", id).
		Int("files", len(files)).
		Bool("password_protected", hash != nil).
		Msg("mystbin paste stored")
	writeJSON(w, http.StatusOK, mystbinCreateResp{
		ID:        id,
		CreatedAt: now.Format(time.RFC3339Nano),
		Expires:   formatExpiry(expires),
		Safety:    uuid.NewString(),
	})
}

func (h *Hdl) GetMystbin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "key")
	e, ok := h.store.Get(r.Context(), id)
	if !ok || e.Dialect != dialectMystbin {
		writeJSON(w, http.StatusNotFound, errorResp{"paste not found"})
		return
	}
	if e.PasswordHash != nil {
		pw := r.URL.Query().Get("password")
		if pw == "" || bcrypt.CompareHashAndPassword(e.PasswordHash, []byte(pw)) != nil {
			hlog.FromRequest(r).Warn().
				Str("id", id).
				Str("client_ip", util.RedactIP(r.RemoteAddr)).
				Msg("failed password attempt")
			writeJSON(w, http.StatusUnauthorized, errorResp{"password required"})
			return
		}
	}
	resp := mystbinGetResp{
		ID:          id,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
		Expires:     formatExpiry(e.ExpiresAt),
		Views:       e.Views,
		HasPassword: e.PasswordHash != nil,
		Files:       make([]mystbinFileResp, len(e.Files)),
	}
	for i, f := range e.Files {
		content := string(f.Content)
		resp.Files[i] = mystbinFileResp{
			ParentID:         id,
			Content:          content,
			Filename:         f.Filename,
			LOC:              strings.Count(content, "\n") + 1,
			CharCount:        utf8.RuneCountInString(content),
			WarningPositions: []int{},
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func formatExpiry(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
