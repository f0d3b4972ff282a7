package api

import (
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"superpaste/metrics"
	"superpaste/svc/cache"
	"superpaste/svc/util"
)

const (
	maxRequestSize = 4 << 20

	dialectHastebin = "hastebin"
	dialectMystbin  = "mystbin"
	dialectPasteEE  = "pasteee"
)

type Hdl struct {
	store *cache.LRU
}

type documentResp struct {
	Key string `json:"key"`
}

type documentGetResp struct {
	Key  string `json:"key"`
	Data string `json:"data"`
}

type messageResp struct {
	Message string `json:"message"`
}

func (h *Hdl) CreateDocument(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err != nil {
		log.Warn().Err(err).Msg("document body too large")
		writeJSON(w, http.StatusRequestEntityTooLarge, messageResp{"Document exceeds maximum length."})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, messageResp{"No document content."})
		return
	}
	key, err := util.GenKey(h.store.Exists)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate key")
		writeJSON(w, http.StatusInternalServerError, messageResp{"Error adding document."})
		return
	}
	h.store.Set(r.Context(), key, cache.Entry{
		Dialect: dialectHastebin,
		Files: []cache.StoredFile{{
			Content: body,
			Binary:  !utf8.Valid(body),
		}},
	})
	metrics.EmuPastesStored.WithLabelValues(dialectHastebin).Inc()
	log.Info().
		Str("key", key).
		Int("size", len(body)).
		Str("content", util.RedactPasteContent(string(body))).
		Msg("document stored")
	writeJSON(w, http.StatusOK, documentResp{Key: key})
}

func (h *Hdl) document(w http.ResponseWriter, r *http.Request) (cache.StoredFile, string, bool) {
	key := chi.URLParam(r, "key")
	e, ok := h.store.Get(r.Context(), key)
	if !ok || e.Dialect != dialectHastebin || len(e.Files) == 0 {
		writeJSON(w, http.StatusNotFound, messageResp{"Document not found."})
		return cache.StoredFile{}, key, false
	}
	return e.Files[0], key, true
}

func (h *Hdl) GetRaw(w http.ResponseWriter, r *http.Request) {
	f, _, ok := h.document(w, r)
	if !ok {
		return
	}
	if f.Binary {
		w.Header().Set("Content-Type", "application/octet-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(f.Content)
}

func (h *Hdl) GetDocument(w http.ResponseWriter, r *http.Request) {
	f, key, ok := h.document(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, documentGetResp{Key: key, Data: string(f.Content)})
}
