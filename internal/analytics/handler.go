package analytics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Vovarama1992/widget-chat-bridge/internal/chat"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

type Handler struct {
	engine *Engine
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger, now: time.Now}
}

// HandleReport serves GET /api/analytics/{botId}?period=&startDate=&endDate=&format=
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botId")
	q := r.URL.Query()

	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	window, err := ResolveWindow(Period(q.Get("period")), q.Get("startDate"), q.Get("endDate"), h.now())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	report, err := h.engine.Aggregate(r.Context(), botID, window)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	if format == FormatJSON {
		writeJSON(w, http.StatusOK, report)
		return
	}

	// render first so a failure never leaves a half-written body
	var buf bytes.Buffer
	if err := WriteCSV(&buf, report.Daily); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=analytics-%s.csv", botID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRange), errors.Is(err, chat.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("analytics request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
