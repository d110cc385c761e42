package httpx

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jpcardenas/retail-backoffice/internal/store"
)

type FinancialHandler struct {
	DB *sql.DB
}

func (h *FinancialHandler) Register(r *chi.Mux) {
	r.Get("/financial/sales", h.sales)
}

// sales reports paid register sales for a date range; defaults to the
// last 30 days.
func (h *FinancialHandler) sales(w http.ResponseWriter, r *http.Request) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date"})
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date"})
			return
		}
		// Inclusive end date.
		to = t.AddDate(0, 0, 1)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := store.GetSalesStats(ctx, h.DB, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
