package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/internal/usecase"
)

func (h *Handler) Tile(c *gin.Context) {
	l := requestLogger(c)

	strX := c.Param("x")
	strY := c.Param("y")
	strZ := c.Param("z")

	x, err := strconv.ParseUint(strX, 10, 32)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "x should be integer", nil)
		return
	}

	y, err := strconv.ParseUint(strY, 10, 32)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "y should be integer", nil)
		return
	}

	z, err := strconv.Atoi(strZ)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "z should be integer", nil)
		return
	}

	id := tileid.NewCanonicalTileID(z, uint32(x), uint32(y))
	data, err := h.tileUseCase.Tile(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, tileid.ErrInvalidZoom), errors.Is(err, tileid.ErrInvalidCoordinate):
			h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, usecase.ErrFetchTimeout):
			h.RespondWithJSON(c, http.StatusGatewayTimeout, "upstream timed out", nil)
		case errors.Is(err, usecase.ErrBadStatus):
			h.RespondWithJSON(c, http.StatusBadGateway, err.Error(), nil)
		default:
			l.Error("failed to get tile", "tile", id.String(), "error", err)
			h.RespondWithInternalServerError(c)
		}
		return
	}

	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
