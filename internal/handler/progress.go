package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/service"
	"github.com/clipquiz/api/pkg/response"
)

type ProgressHandler struct {
	service *service.ProgressService
}

func NewProgressHandler(svc *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{service: svc}
}

// Ingest handles POST /internal/progress
// @Summary      Ingest progress event
// @Description  Receive a progress event from the extraction pipeline and fan it out to connected clients
// @Tags         Progress
// @Accept       json
// @Produce      json
// @Param        request body model.ProgressIngestRequest true "Progress event"
// @Success      200 {object} model.ProgressIngestResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Router       /internal/progress [post]
func (h *ProgressHandler) Ingest(c *fiber.Ctx) error {
	var req model.ProgressIngestRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Ingest(req.JobID, req.ProgressData)
	if err != nil {
		if errors.Is(err, model.ErrMissingJobID) {
			return response.ValidationError(c, "jobId is required", nil)
		}
		var malformed *model.MalformedEventError
		if errors.As(err, &malformed) {
			return response.ValidationError(c, malformed.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.ProgressIngestResponse{
		Success:          true,
		Delivered:        result.Delivered,
		ConnectedClients: result.ConnectedClients,
	})
}

// Snapshot handles GET /api/progress/:jobId
// @Summary      Get latest progress
// @Description  Get the most recent progress event recorded for a job
// @Tags         Progress
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} progress.Snapshot
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/progress/{jobId} [get]
func (h *ProgressHandler) Snapshot(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	snapshot, ok := h.service.Snapshot(jobID)
	if !ok {
		return response.NotFound(c, "No progress recorded for job")
	}

	return response.OK(c, snapshot)
}

// Clear handles DELETE /api/progress/:jobId
// @Summary      Clear job progress
// @Description  Drop the stored progress snapshot and cancel any pending redirect for a job
// @Tags         Progress
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      204
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/progress/{jobId} [delete]
func (h *ProgressHandler) Clear(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if !h.service.Clear(jobID) {
		return response.NotFound(c, "No progress recorded for job")
	}

	return response.NoContent(c)
}
