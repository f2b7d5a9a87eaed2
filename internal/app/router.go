package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/infinite-gateway/internal/controller"
	"github.com/unclebandit/infinite-gateway/internal/handler"
	"github.com/unclebandit/infinite-gateway/internal/metrics"
)

// Routes are the handlers mounted by NewRouter.
type Routes struct {
	Auth        *controller.AuthController
	Customers   *controller.CustomerController
	Cardholders *handler.CardholderHandler
	Health      func(ctx context.Context) error
	Log         *zap.Logger
}

func NewRouter(rt Routes) http.Handler {
	log := rt.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withLogging(log))
	r.Use(metrics.WithMetrics)

	r.Get("/healthz", healthz(rt.Health))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/oauth/getToken", rt.Auth.GetToken)
		r.Post("/oauth/updateToken", rt.Auth.UpdateToken)

		r.Post("/user/add", rt.Customers.AddUsers)
		r.Post("/user/update", rt.Customers.UpdateUsers)
		r.Post("/user/close", rt.Customers.CloseUsers)
		r.Get("/user/list", rt.Customers.ListUsers)

		r.Post("/sync", rt.Customers.RunSync)
		r.Get("/sync/stats", rt.Customers.SyncStats)

		r.Route("/cardholder", rt.Cardholders.Routes)
	})
	return r
}

// Router builds the HTTP surface over the app's services.
func (a *App) Router() http.Handler {
	return NewRouter(Routes{
		Auth: &controller.AuthController{Tokens: a.Tokens, Log: a.Log},
		Customers: &controller.CustomerController{
			API:       a.API,
			Tokens:    a.Tokens,
			Sync:      a.Sync,
			Customers: a.Customers,
			Log:       a.Log,
		},
		Cardholders: handler.NewCardholderHandler(a.Cardholders, a.Log),
		Health:      a.DB.PingContext,
		Log:         a.Log,
	})
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				controller.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withLogging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request completed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
