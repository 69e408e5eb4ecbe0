package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/talkwire/room-broadcast-service/config"
	"github.com/talkwire/room-broadcast-service/internal/handler/ws"
	"go.uber.org/fx"
)

// NewRouter assembles the full HTTP surface: the chat WebSocket endpoint and
// the REST read API.
func NewRouter(api *Handler, chat *ws.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ws/chat/{userID}/{roomID}", chat.ServeHTTP)
	r.Get("/messages/{roomID}", api.Messages)
	r.Post("/admin/messages/{roomID}", api.Announce)
	r.Get("/stats", api.Stats)
	r.Get("/healthz", api.Health)
	return r
}

func NewServer(cfg *config.Config, router chi.Router) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

var Module = fx.Module("handler.httpapi",
	fx.Provide(
		NewHandler,
		NewRouter,
		NewServer,
	),
	fx.Invoke(func(lc fx.Lifecycle, srv *http.Server, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					logger.Info("http server listening", slog.String("addr", srv.Addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http server terminated", slog.Any("error", err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
