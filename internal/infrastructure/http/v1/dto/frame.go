package dto

import (
	"time"

	"github.com/jaennil/guide_helper/tilestream/internal/transform"
)

type FrameRequest struct {
	Lng               float64 `json:"lng" validate:"gte=-180,lte=180"`
	Lat               float64 `json:"lat" validate:"gte=-90,lte=90"`
	Zoom              float64 `json:"zoom" validate:"gte=0,lte=24"`
	Pitch             float64 `json:"pitch" validate:"gte=0,lte=85"`
	Bearing           float64 `json:"bearing"`
	Width             int     `json:"width" validate:"required,gt=0,lte=8192"`
	Height            int     `json:"height" validate:"required,gt=0,lte=8192"`
	FOV               float64 `json:"fov" validate:"omitempty,gt=0,lt=180"`
	RenderWorldCopies bool    `json:"render_world_copies"`
	// WaitMs is how long the server may wait for pending tiles.
	WaitMs int `json:"wait_ms" validate:"gte=0,lte=10000"`
}

func (r FrameRequest) Camera() transform.Camera {
	return transform.Camera{
		Lng:               r.Lng,
		Lat:               r.Lat,
		Zoom:              r.Zoom,
		Pitch:             r.Pitch,
		Bearing:           r.Bearing,
		Width:             r.Width,
		Height:            r.Height,
		FOV:               r.FOV,
		RenderWorldCopies: r.RenderWorldCopies,
	}
}

func (r FrameRequest) Wait() time.Duration {
	return time.Duration(r.WaitMs) * time.Millisecond
}
