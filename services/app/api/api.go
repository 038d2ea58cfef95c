package api

import (
	"github.com/forbiddencoding/deal-notifier/services/app"
	v1 "github.com/forbiddencoding/deal-notifier/services/app/api/v1"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

func NewRouter(app *app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.CleanPath,
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.RedirectSlashes,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if app.Gatherer() != nil {
		r.Handle("/metrics", promhttp.HandlerFor(app.Gatherer(), promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		watchHandler := v1.NewWatchHandler(app.WatchService())
		categoryHandler := v1.NewCategoryHandler(app.CategoryService())

		r.Post("/watches", watchHandler.UpsertWatchPost())

		r.Route("/owners/{ownerID}/watches", func(r chi.Router) {
			r.Get("/", watchHandler.ListWatchesGet())
			r.Delete("/", watchHandler.DeleteWatchDelete())
		})

		r.Route("/guilds/{guildID}/categories", func(r chi.Router) {
			r.Post("/", categoryHandler.CreateJobPost())
			r.Get("/", categoryHandler.ListJobsGet())

			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", categoryHandler.GetJobGet())
				r.Delete("/", categoryHandler.DeleteJobDelete())
				r.Put("/status", categoryHandler.UpdateStatusPut())
				r.Get("/stats", categoryHandler.StatsGet())
			})
		})
	})

	return r
}
