// Package httpapi exposes the byte-range streaming service and the ops
// surface (health, sessions, live log) over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"nzbengine/pkg/apperrors"
	"nzbengine/pkg/logger"
	"nzbengine/pkg/mount"
)

// RangeHandler answers GET/HEAD /stream/<mountId>/<fileIndex> and the mount
// management endpoints in §6.3.
type RangeHandler struct {
	service *mount.Service
}

// NewRangeHandler builds a handler backed by service.
func NewRangeHandler(service *mount.Service) *RangeHandler {
	return &RangeHandler{service: service}
}

// Register wires the handler's routes onto mux.
func (h *RangeHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /mounts", h.handleCreateMount)
	mux.HandleFunc("GET /mounts/{id}", h.handleGetMount)
	mux.HandleFunc("GET /stream/{mountId}/{fileIndex}", h.handleStream)
	mux.HandleFunc("HEAD /stream/{mountId}/{fileIndex}", h.handleStream)
}

func (h *RangeHandler) handleCreateMount(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	info, err := h.service.CreateMount(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(info)
}

func (h *RangeHandler) handleGetMount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := h.service.Lookup(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

func (h *RangeHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountId")
	fileIndexStr := r.PathValue("fileIndex")

	fileIndex, err := strconv.Atoi(fileIndexStr)
	if err != nil {
		http.Error(w, "invalid file index", http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateStream(r.Context(), mountID, fileIndex, r.Header.Get("Range"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer created.Reader.Close()

	w.Header().Set("Content-Type", created.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(created.ContentLength, 10))

	if created.IsPartial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", created.StartByte, created.EndByte, created.TotalSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, created.Reader); err != nil {
		logger.Warn("stream copy interrupted", "mountId", mountID, "error", err)
	}
}

// writeError maps the typed error taxonomy to the HTTP status codes in
// §6.3/§7's user-visible mapping.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound    *apperrors.MountNotFound
		fileNF      *apperrors.FileNotFound
		notReady    *apperrors.MountNotReady
		invalidRng  *apperrors.InvalidRange
		notStream   *apperrors.NotStreamable
		connTimeout *apperrors.ConnectionTimeout
		poolTimeout *apperrors.PoolTimeout
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &fileNF):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &notReady):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &invalidRng):
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
	case errors.As(err, &notStream):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &connTimeout), errors.As(err, &poolTimeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
