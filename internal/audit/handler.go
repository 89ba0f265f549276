package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/httpserver"
)

// Handler serves the audit log on the admin API.
type Handler struct {
	writer *Writer
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(writer *Writer, logger *slog.Logger) *Handler {
	return &Handler{writer: writer, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	records, total, err := h.writer.List(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	if records == nil {
		records = []Record{}
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(records, params, total))
}
