package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

type AdminHandler struct {
	Service *orders.Service
	Query   *orders.Query
	// PasswordHash is a bcrypt hash; empty disables the admin API.
	PasswordHash []byte
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/orders", h.listOrders)
		r.Post("/orders/{key}/settle", h.settle)
		r.Post("/orders/{key}/cancel", h.cancel)
		r.Post("/sweep", h.sweep)
		r.Get("/stats", h.stats)
	})
}

func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		password := r.Header.Get("X-Admin-Password")
		if password == "" {
			_, password, _ = r.BasicAuth()
		}
		if !h.checkPassword(password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			writeJSON(w, http.StatusUnauthorized, errorResp{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) checkPassword(password string) bool {
	if len(h.PasswordHash) == 0 || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.PasswordHash, []byte(password)) == nil
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	var status orders.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st, ok := orders.ParseOrderStatus(s)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "unknown status"})
			return
		}
		status = st
	}
	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	list, err := h.Query.Orders(ctx, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) settle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	st, err := h.Service.Settle(ctx, chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *AdminHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	if err := h.Service.Cancel(ctx, chi.URLParam(r, "key")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *AdminHandler) sweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, 30*time.Second)
	defer cancel()

	n, err := h.Service.SweepDue(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, 5*time.Second)
	defer cancel()

	st, err := h.Query.Stats(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rev, err := h.Query.Revenue(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pixels": st, "revenue": rev})
}
