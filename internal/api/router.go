package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/predict", app.PredictHandler)
	r.Get("/predictions/{uid}", app.GetPredictionHandler)
	r.Get("/predictions/score/{minScore}", app.PredictionsByScoreHandler)
	r.Get("/predictions/label/{label}", app.PredictionsByLabelHandler)
	r.Get("/image/{imageType}/{filename}", app.ImageHandler)
	r.Get("/prediction/{uid}/image", app.PredictionImageHandler)
	r.Get("/health", app.HealthHandler)

	return r
}
