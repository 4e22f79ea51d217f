package http_server

import (
	"context"
	"net"
	"net/http"

	"github.com/jaennil/guide_helper/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
)

func NewServer(ctx context.Context, cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return logger.WithLogger(context.Background(), logger.FromContext(ctx))
		},
	}
}
