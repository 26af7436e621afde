package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type OrdersHandler struct {
	Service *orders.Service
	Query   *orders.Query
}

type CreateOrderReq struct {
	PixelIDs       []int                   `json:"pixel_ids"`
	Color          string                  `json:"color,omitempty"`
	Link           string                  `json:"link,omitempty"`
	IndividualData map[string]orders.Style `json:"individual_data,omitempty"`
}

type ProofReq struct {
	PaymentProofURL string `json:"payment_proof_url"`
	PaymentNote     string `json:"payment_note"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{key}", h.getOrder)
	r.Post("/orders/{key}/proof", h.attachProof)
	r.Get("/pixels", h.listPixels)
	r.Get("/pixels/stats", h.stats)
}

func requestContext(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := orders.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	return context.WithTimeout(ctx, d)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	appearance, err := orders.DecodeAppearance(req.Color, req.Link, req.IndividualData)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	res, err := h.Service.CreateOrder(ctx, req.PixelIDs, appearance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, 3*time.Second)
	defer cancel()

	o, err := h.Service.Order(ctx, chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) attachProof(w http.ResponseWriter, r *http.Request) {
	var req ProofReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	ctx, cancel := requestContext(r, 5*time.Second)
	defer cancel()

	o, err := h.Service.AttachProof(ctx, chi.URLParam(r, "key"), req.PaymentProofURL, req.PaymentNote)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "received", "reference": o.Reference})
}

func (h *OrdersHandler) listPixels(w http.ResponseWriter, r *http.Request) {
	var status orders.PixelStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st, ok := orders.ParsePixelStatus(s)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "unknown status"})
			return
		}
		status = st
	}
	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	ps, err := h.Query.Pixels(ctx, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ps == nil {
		ps = []orders.Pixel{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, 3*time.Second)
	defer cancel()

	st, err := h.Query.Stats(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
