package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/middleware"
	"github.com/clipquiz/api/internal/service"
	"github.com/clipquiz/api/pkg/response"
)

type SongHandler struct {
	service *service.SongService
}

func NewSongHandler(svc *service.SongService) *SongHandler {
	return &SongHandler{service: svc}
}

// List handles GET /api/songs
// @Summary      List songs
// @Description  List the caller's saved songs with playable clip URLs
// @Tags         Songs
// @Produce      json
// @Param        limit query int false "Maximum number of songs to return"
// @Success      200 {object} model.SongListResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/songs [get]
func (h *SongHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		limit = 0
	}

	result, err := h.service.ListSongs(c.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		var storeErr *client.StoreError
		if errors.As(err, &storeErr) {
			return response.StoreError(c, storeErr.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Delete handles DELETE /api/songs/:songId
// @Summary      Delete song
// @Description  Delete a song row and its stored clip object
// @Tags         Songs
// @Produce      json
// @Param        songId path string true "Song ID"
// @Success      204
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/songs/{songId} [delete]
func (h *SongHandler) Delete(c *fiber.Ctx) error {
	songID := c.Params("songId")
	if songID == "" {
		return response.ValidationError(c, "Song ID is required", nil)
	}

	if err := h.service.DeleteSong(c.Context(), songID); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return response.NotFound(c, "Song not found")
		}
		var storeErr *client.StoreError
		if errors.As(err, &storeErr) {
			return response.StoreError(c, storeErr.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}
