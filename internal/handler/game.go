package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/middleware"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/service"
	"github.com/clipquiz/api/internal/writeback"
	"github.com/clipquiz/api/pkg/response"
)

type GameHandler struct {
	service   *service.GameService
	validator *validator.Validate
}

func NewGameHandler(svc *service.GameService, v *validator.Validate) *GameHandler {
	return &GameHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/games
// @Summary      Create game
// @Description  Build a quiz game from the caller's saved songs
// @Tags         Games
// @Accept       json
// @Produce      json
// @Param        request body model.GameCreateRequest true "Game create request"
// @Success      201 {object} model.GameCreateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/games [post]
func (h *GameHandler) Create(c *fiber.Ctx) error {
	var req model.GameCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateGame(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		var vErr *writeback.ValidationError
		if errors.As(err, &vErr) {
			return response.ValidationError(c, vErr.Error(), vErr.Fields)
		}
		var storeErr *client.StoreError
		if errors.As(err, &storeErr) {
			return response.StoreError(c, storeErr.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Get handles GET /api/games/:gameId
// @Summary      Get game
// @Description  Get a game and its questions
// @Tags         Games
// @Produce      json
// @Param        gameId path string true "Game ID"
// @Success      200 {object} model.GameDetailResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/games/{gameId} [get]
func (h *GameHandler) Get(c *fiber.Ctx) error {
	gameID := c.Params("gameId")
	if gameID == "" {
		return response.ValidationError(c, "Game ID is required", nil)
	}

	result, err := h.service.GetGame(c.Context(), gameID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return response.NotFound(c, "Game not found")
		}
		var storeErr *client.StoreError
		if errors.As(err, &storeErr) {
			return response.StoreError(c, storeErr.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Delete handles DELETE /api/games/:gameId
// @Summary      Delete game
// @Description  Delete a game and its questions
// @Tags         Games
// @Produce      json
// @Param        gameId path string true "Game ID"
// @Success      204
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/games/{gameId} [delete]
func (h *GameHandler) Delete(c *fiber.Ctx) error {
	gameID := c.Params("gameId")
	if gameID == "" {
		return response.ValidationError(c, "Game ID is required", nil)
	}

	if err := h.service.DeleteGame(c.Context(), gameID); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return response.NotFound(c, "Game not found")
		}
		var storeErr *client.StoreError
		if errors.As(err, &storeErr) {
			return response.StoreError(c, storeErr.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}
