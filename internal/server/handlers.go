package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Aafreen2203/SafePostAI/internal/content"
	"github.com/Aafreen2203/SafePostAI/internal/history"
	"github.com/Aafreen2203/SafePostAI/internal/requestctx"
	"github.com/Aafreen2203/SafePostAI/internal/scan"
)

const (
	maxTextBodyBytes = 1 << 20
	maxHistoryLimit  = 500
	maxAnalyticsDays = 365
)

type analyzeTextRequest struct {
	Text string `json:"text"`
}

type analyzeImageRequest struct {
	Image string `json:"image"`
}

func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTextBodyBytes)
	var req analyzeTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}
	res, err := s.scanner.ScanText(r.Context(), req.Text)
	if err != nil {
		s.writeScanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	// base64 inflates by 4/3; leave room for the JSON envelope and a data URL prefix.
	limit := int64(s.maxImageMB)<<20*4/3 + 64<<10
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req analyzeImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "image is required")
		return
	}
	res, err := s.scanner.ScanImage(r.Context(), req.Image)
	if err != nil {
		s.writeScanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
}

func (s *Server) writeScanError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, content.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "image_too_large", err.Error())
	case errors.Is(err, content.ErrInvalidImage), errors.Is(err, content.ErrUnsupportedImage):
		writeError(w, http.StatusBadRequest, "invalid_image", err.Error())
	default:
		log.Error().Err(err).Str("request_id", requestctx.RequestID(r.Context())).Msg("scan_failed")
		writeError(w, http.StatusInternalServerError, "scan_failed", "Scan failed")
	}
}

func (s *Server) writeHistoryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Scan record not found")
		return
	}
	log.Error().Err(err).Str("request_id", requestctx.RequestID(r.Context())).Msg("history_request_failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "History unavailable")
}

// positiveInt parses a query parameter, falling back to def when absent.
func positiveInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit, err := positiveInt(r, "limit", 50, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	f := history.Filter{Limit: limit}
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", scan.KindText, scan.KindImage:
		f.Kind = kind
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "kind must be text or image")
		return
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "since must be RFC 3339")
			return
		}
		f.Since = t
	}
	records, err := s.history.List(r.Context(), f)
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records, "count": len(records)})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistoryVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	valid, err := s.history.Verify(r.Context(), id)
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "valid": valid})
}

func (s *Server) handleHistoryOverride(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.MarkOverridden(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	log.Info().
		Str("report_id", rec.ID).
		Str("caller", requestctx.Caller(r.Context())).
		Msg("scan_overridden")
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	days, err := positiveInt(r, "days", history.DefaultAnalyticsDays, maxAnalyticsDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	a, err := s.history.Analytics(r.Context(), days)
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	e, err := s.history.Export(r.Context())
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	e.Version = s.version
	e.Settings = s.settings
	w.Header().Set("Content-Disposition", `attachment; filename="safepost-export.json"`)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := make(map[string]string, len(s.checkers))
		for _, c := range s.checkers {
			if err := c.Check(r.Context()); err != nil {
				components[c.Name()] = "error: " + err.Error()
				resp["status"] = "degraded"
				continue
			}
			components[c.Name()] = "ok"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}
