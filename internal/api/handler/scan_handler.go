package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/sensei-scan/internal/api/dto"
	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SubmitScan handles POST /api/v1/scans
func (h *ScanHandler) SubmitScan(c *gin.Context) {
	var req dto.SubmitScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "invalid request body")
		return
	}

	job, err := h.scheduler.Submit(c.Request.Context(), domain.SubmitRequest{
		URL:           req.URL,
		Consent:       req.Consent,
		TermsAccepted: req.TermsAccepted,
		SimulationAck: req.SimulationAck,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SubmitScanResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// GetScan handles GET /api/v1/scans/:job_id
func (h *ScanHandler) GetScan(c *gin.Context) {
	job, err := h.scheduler.Get(c.Param("job_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToScanJobDTO(job))
}

// ListScans handles GET /api/v1/scans
// Jobs keep insertion order; the cursor names the last job already returned.
func (h *ScanHandler) ListScans(c *gin.Context) {
	var req dto.ListScansRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		badRequest(c, "invalid query parameters")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	status := domain.JobStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		badRequest(c, "unknown status: "+req.Status)
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "invalid cursor")
		return
	}

	jobs := h.scheduler.List()

	start := 0
	if cursor != nil {
		start = -1
		for i, job := range jobs {
			if job.ID == cursor.JobID && job.CreatedAt.Equal(cursor.CreatedAt) {
				start = i + 1
				break
			}
		}
		if start < 0 {
			badRequest(c, "cursor does not match any job")
			return
		}
	}

	page := make([]dto.ScanJobDTO, 0, req.PageSize)
	var last domain.ScanJob
	var nextCursor string
	for _, job := range jobs[start:] {
		if req.Status != "" && job.Status != status {
			continue
		}
		if len(page) == req.PageSize {
			nextCursor = EncodeJobCursor(&JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID})
			break
		}
		page = append(page, dto.ToScanJobDTO(job))
		last = job
	}

	c.JSON(http.StatusOK, dto.ListScansResponse{
		Jobs:       page,
		NextCursor: nextCursor,
	})
}

// GetReport handles GET /api/v1/reports/:result_id
func (h *ScanHandler) GetReport(c *gin.Context) {
	rep, err := h.reports.Report(c.Request.Context(), c.Param("result_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToReportResponse(rep))
}
