package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to statuses. Store and unknown failures are
// logged with their cause and answered with a generic message.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *domain.ValidationError
		duplicate   *domain.DuplicateCodeError
		notFound    *domain.NotFoundError
		upload      *domain.UploadError
		unavailable *domain.StoreUnavailableError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validation.Error(), Field: validation.Field})
	case errors.As(err, &duplicate):
		writeJSON(w, http.StatusConflict, errorBody{Error: duplicate.Error(), Field: "code"})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: notFound.Error()})
	case errors.As(err, &upload):
		h.log.Warn("image upload failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "Failed to upload image. " + upload.Message})
	case errors.As(err, &unavailable):
		h.log.Error("store unavailable", zap.String("path", r.URL.Path), zap.String("op", unavailable.Op), zap.Error(unavailable.Err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: msgUnavailable})
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
