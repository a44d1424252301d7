package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mutugading/logquery/internal/application/logquery"
	"github.com/mutugading/logquery/internal/domain/logrecord"
	"github.com/mutugading/logquery/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LogLister runs a paginated log query.
type LogLister interface {
	List(ctx context.Context, q logquery.Query) (*logrecord.Page, error)
}

// LogExporter renders the records matching a filter as a spreadsheet.
type LogExporter interface {
	Handle(ctx context.Context, filter logrecord.Filter) (*logquery.ExportResult, error)
}

// LogHandler serves the log query endpoints.
type LogHandler struct {
	builder  logquery.Builder
	lister   LogLister
	exporter LogExporter
}

// NewLogHandler creates a new LogHandler.
func NewLogHandler(builder logquery.Builder, lister LogLister, exporter LogExporter) *LogHandler {
	return &LogHandler{
		builder:  builder,
		lister:   lister,
		exporter: exporter,
	}
}

type logDTO struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listData struct {
	Logs []logDTO `json:"logs"`
}

type listResponse struct {
	Data       listData `json:"data"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalRows  int64    `json:"totalRows"`
	TotalPages int64    `json:"totalPages"`
}

// List handles GET /logs.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := h.builder.Build(logquery.ParamsFromValues(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.lister.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, NewListResponse(page))
}

// Export handles GET /logs/export.
func (h *LogHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := h.builder.BuildFilter(logquery.ParamsFromValues(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.exporter.Handle(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+result.FileName)
	w.Header().Set("X-Export-Rows", strconv.Itoa(result.Rows))
	w.Header().Set("X-Export-Truncated", strconv.FormatBool(result.Truncated))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.FileContent); err != nil {
		log.Warn().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("Failed to write export")
	}
}

// NewListResponse converts a page into the response envelope.
func NewListResponse(page *logrecord.Page) any {
	logs := make([]logDTO, 0, len(page.Logs))
	for _, l := range page.Logs {
		logs = append(logs, logDTO{
			ID:        l.ID().String(),
			Type:      l.Type(),
			Level:     l.Level(),
			Message:   l.Message(),
			CreatedAt: l.CreatedAt().UTC(),
			UpdatedAt: l.UpdatedAt().UTC(),
		})
	}

	return listResponse{
		Data:       listData{Logs: logs},
		Page:       page.Page,
		Limit:      page.Limit,
		TotalRows:  page.TotalRows,
		TotalPages: page.TotalPages,
	}
}

// writeError maps an error to its status code. Only validation failures are
// described to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *logrecord.ValidationError
	if errors.As(err, &validationErr) {
		fields := make([]response.ValidationError, 0, len(validationErr.Fields))
		for _, f := range validationErr.Fields {
			fields = append(fields, response.ValidationError{Field: f.Field, Message: f.Message})
		}
		response.BadRequest(w, fields)
		return
	}

	event := log.Error().Err(err).
		Str("request_id", RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path)

	var storageErr *logrecord.StorageError
	if errors.As(err, &storageErr) {
		event = event.Str("operation", storageErr.Op)
	}
	event.Msg("Log query failed")

	response.InternalError(w)
}
