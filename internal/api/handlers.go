package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okatz/objectdetect/internal/detect"
	"github.com/okatz/objectdetect/internal/imagestore"
	"github.com/okatz/objectdetect/internal/objectstore"
	"github.com/okatz/objectdetect/internal/service"
	"github.com/okatz/objectdetect/internal/store"
)

type App struct {
	Store         store.Store
	Images        *imagestore.ImageStore
	Service       *service.Service
	MaxUploadSize int64
}

type predictRequest struct {
	ImageName  string `json:"image_name"`
	ChatID     string `json:"chat_id"`
	BucketName string `json:"bucket_name"`
	UID        string `json:"uid"`
}

func (app *App) PredictHandler(w http.ResponseWriter, r *http.Request) {
	input, ok := app.resolvePredictInput(w, r)
	if !ok {
		return
	}

	result, err := app.Service.Process(r.Context(), input)
	if err != nil {
		app.predictError(w, err)
		return
	}

	respondJSON(w, result, http.StatusOK)
}

// resolvePredictInput accepts either a JSON object-store reference or a
// direct multipart upload. A JSON body takes the object-store path; anything
// else is treated as an upload attempt.
func (app *App) resolvePredictInput(w http.ResponseWriter, r *http.Request) (service.Input, bool) {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid JSON body", http.StatusBadRequest)
			return service.Input{}, false
		}
		if req.ImageName == "" {
			respondError(w, "No image file or image name provided", http.StatusBadRequest)
			return service.Input{}, false
		}
		return service.Input{
			UID:       req.UID,
			ChatID:    req.ChatID,
			ImageName: req.ImageName,
			Bucket:    req.BucketName,
		}, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		respondError(w, "No image file or image name provided", http.StatusBadRequest)
		return service.Input{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "No image file or image name provided", http.StatusBadRequest)
		return service.Input{}, false
	}
	defer file.Close()

	uid := uuid.New().String()
	originalPath, predictedPath, err := app.Images.SaveOriginal(file, uid, header.Filename)
	if err != nil {
		respondError(w, "Failed to save uploaded file", http.StatusInternalServerError)
		return service.Input{}, false
	}

	return service.Input{
		UID:           uid,
		ChatID:        r.FormValue("chat_id"),
		OriginalPath:  originalPath,
		PredictedPath: predictedPath,
	}, true
}

func (app *App) predictError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoInput):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrBucketNotConfigured):
		respondError(w, err.Error(), http.StatusInternalServerError)
	case errors.Is(err, objectstore.ErrObjectNotFound), errors.Is(err, objectstore.ErrUnavailable):
		respondError(w, "Failed to download image from object store", http.StatusBadRequest)
	case errors.Is(err, detect.ErrDetectionFailed):
		respondError(w, "Detection failed: invalid or unreadable image", http.StatusBadRequest)
	case errors.Is(err, store.ErrConflict):
		respondError(w, "Prediction already exists", http.StatusConflict)
	default:
		respondError(w, "Prediction failed", http.StatusInternalServerError)
	}
}

func (app *App) GetPredictionHandler(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	prediction, err := app.Store.GetPrediction(r.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidArgument) {
			respondError(w, "Prediction not found", http.StatusNotFound)
			return
		}
		respondError(w, "Failed to load prediction", http.StatusInternalServerError)
		return
	}

	respondJSON(w, prediction, http.StatusOK)
}

func (app *App) PredictionsByScoreHandler(w http.ResponseWriter, r *http.Request) {
	minScore, err := strconv.ParseFloat(chi.URLParam(r, "minScore"), 64)
	if err != nil || math.IsNaN(minScore) || minScore < 0 || minScore > 1 {
		respondError(w, "Score must be between 0 and 1", http.StatusBadRequest)
		return
	}

	summaries, err := app.Store.GetPredictionsByScore(r.Context(), minScore)
	if err != nil {
		respondError(w, "Failed to query predictions", http.StatusInternalServerError)
		return
	}

	respondJSON(w, summaries, http.StatusOK)
}

func (app *App) PredictionsByLabelHandler(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	if !detect.KnownLabel(label) {
		respondError(w, "Unknown label", http.StatusNotFound)
		return
	}

	summaries, err := app.Store.GetPredictionsByLabel(r.Context(), label)
	if err != nil {
		respondError(w, "Failed to query predictions", http.StatusInternalServerError)
		return
	}

	respondJSON(w, summaries, http.StatusOK)
}

func (app *App) ImageHandler(w http.ResponseWriter, r *http.Request) {
	imageType := chi.URLParam(r, "imageType")
	filename := chi.URLParam(r, "filename")

	if !imagestore.ValidKind(imageType) {
		respondError(w, "Invalid image type", http.StatusBadRequest)
		return
	}

	file, err := app.Images.Open(imageType, filename)
	if err != nil {
		respondError(w, "Image not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	io.Copy(w, file)
}

func (app *App) PredictionImageHandler(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	prediction, err := app.Store.GetPrediction(r.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidArgument) {
			respondError(w, "Prediction not found", http.StatusNotFound)
			return
		}
		respondError(w, "Failed to load prediction", http.StatusInternalServerError)
		return
	}

	accept := r.Header.Get("Accept")
	var contentType string
	switch {
	case strings.Contains(accept, "image/png"):
		contentType = "image/png"
	case strings.Contains(accept, "image/jpeg"), strings.Contains(accept, "image/jpg"):
		contentType = "image/jpeg"
	default:
		respondError(w, "Client does not accept an image format", http.StatusNotAcceptable)
		return
	}

	file, err := app.Images.OpenPath(prediction.PredictedImage)
	if err != nil {
		respondError(w, "Predicted image file not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentType)
	io.Copy(w, file)
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
