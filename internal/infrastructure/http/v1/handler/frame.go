package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaennil/guide_helper/tilestream/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/tilestream/internal/transform"
)

func (h *Handler) Frame(c *gin.Context) {
	l := requestLogger(c)

	var req dto.FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("invalid frame body", "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		l.Warn("invalid frame request", "error", err)
		h.RespondWithJSON(c, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}

	frame, err := h.frameUseCase.Frame(c.Request.Context(), req.Camera(), req.Wait())
	if err != nil {
		if errors.Is(err, transform.ErrInvalidViewport) ||
			errors.Is(err, transform.ErrInvalidZoom) ||
			errors.Is(err, transform.ErrInvalidFOV) {
			h.RespondWithJSON(c, http.StatusUnprocessableEntity, err.Error(), nil)
			return
		}
		l.Error("failed to resolve frame", "error", err)
		h.RespondWithInternalServerError(c)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "frame resolved", frame)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.frameUseCase.Stats(c.Request.Context())
	if err != nil {
		requestLogger(c).Error("failed to collect stats", "error", err)
		h.RespondWithInternalServerError(c)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "got stats", stats)
}
