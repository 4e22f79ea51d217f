package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/internal/transform"
	"github.com/jaennil/guide_helper/tilestream/internal/usecase"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type FrameUseCase interface {
	Frame(ctx context.Context, cam transform.Camera, wait time.Duration) (*usecase.Frame, error)
	Stats(ctx context.Context) (*usecase.Stats, error)
}

type TileUseCase interface {
	Tile(ctx context.Context, id tileid.CanonicalTileID) ([]byte, error)
}

type Handler struct {
	validate     *validator.Validate
	frameUseCase FrameUseCase
	tileUseCase  TileUseCase
}

func NewHandler(v *validator.Validate, frames FrameUseCase, tiles TileUseCase) *Handler {
	return &Handler{
		validate:     v,
		frameUseCase: frames,
		tileUseCase:  tiles,
	}
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

func requestLogger(c *gin.Context) logger.Logger {
	if l, ok := c.Get("logger"); ok {
		if l, ok := l.(logger.Logger); ok {
			return l
		}
	}
	return logger.Nop()
}
