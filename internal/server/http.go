package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
)

// API serves the plain HTTP JSON surface.
type API struct {
	world   World
	stats   func() Stats
	healthy func() bool
	logger  log.Log
}

func NewAPI(w World, stats func() Stats, healthy func() bool, logger log.Log) *API {
	return &API{world: w, stats: stats, healthy: healthy, logger: logger.With(log.String("component", "http"))}
}

func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sprites", a.listSprites)
	mux.HandleFunc("POST /sprites", a.createSprite)
	mux.HandleFunc("GET /dimensions", a.dimensions)
	mux.HandleFunc("GET /healthz", a.health)
	mux.HandleFunc("GET /stats", a.statsHandler)
	return mux
}

func (a *API) listSprites(w http.ResponseWriter, r *http.Request) {
	_, hash := a.world.Version()
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag(hash) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	snap := SnapshotResult(a.world.Snapshot())
	w.Header().Set("ETag", etag(snap.Hash))
	a.writeJSON(w, http.StatusOK, snap)
}

func (a *API) createSprite(w http.ResponseWriter, r *http.Request) {
	var p protocol.CreateParams
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, protocol.MaxMessageSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		a.writeError(w, protocol.CodeInvalidRequest, fmt.Sprintf("%v: %v", protocol.ErrInvalidParams, err))
		return
	}

	if err := a.world.Create(r.Context(), p.X, p.Y); err != nil {
		code := ErrorCode(err)
		a.logger.Warn("Create sprite failed", log.String("code", string(code)), log.Error(err))
		a.writeError(w, code, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) dimensions(w http.ResponseWriter, _ *http.Request) {
	width, height := a.world.Dimensions()
	a.writeJSON(w, http.StatusOK, map[string]int{"width": width, "height": height})
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	if a.healthy != nil && !a.healthy() {
		http.Error(w, "simulation stopped", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

func (a *API) statsHandler(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.stats())
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("Failed to write response", log.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, code protocol.Code, msg string) {
	a.writeJSON(w, httpStatus(code), protocol.Error{Code: code, Message: msg})
}

func httpStatus(code protocol.Code) int {
	switch code {
	case protocol.CodeInvalidRequest:
		return http.StatusBadRequest
	case protocol.CodeStore:
		return http.StatusServiceUnavailable
	case protocol.CodeTransport:
		return http.StatusGatewayTimeout
	case protocol.CodeUnknownMethod:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func etag(hash uint64) string {
	return fmt.Sprintf(`"%016x"`, hash)
}
