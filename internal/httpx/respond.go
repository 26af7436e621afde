package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-pixel-market.git/internal/logger"
	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	"go.uber.org/zap"
)

type errorResp struct {
	Error    string `json:"error"`
	PixelIDs []int  `json:"pixel_ids,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *orders.ValidationError
		ce *orders.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error(), PixelIDs: ce.PixelIDs})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: "not found"})
	case errors.Is(err, orders.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error()})
	case orders.IsTransient(err):
		logger.FromContext(r.Context(), nil).Warn("transient store failure", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "temporarily unavailable, retry"})
	default:
		logger.FromContext(r.Context(), nil).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
	}
}
