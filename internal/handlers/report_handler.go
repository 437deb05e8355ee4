package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
)

// ReportHandler streams the desk report as a PDF download
type ReportHandler struct {
	report ReportGenerator
	logger arbor.ILogger
	now    func() time.Time
}

// NewReportHandler creates a new report handler
func NewReportHandler(report ReportGenerator, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{
		report: report,
		logger: logger,
		now:    time.Now,
	}
}

// PDFHandler generates and returns the report
func (h *ReportHandler) PDFHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	data, err := h.report.Generate(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate report")
		WriteError(w, http.StatusInternalServerError, "Error al generar el PDF")
		return
	}

	filename := fmt.Sprintf("reporte-retiros-%s.pdf", h.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write report")
	}
}
