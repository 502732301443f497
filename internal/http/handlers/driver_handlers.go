package handlers

import (
	"net/http"

	"voltrewards/internal/http/middleware"
	"voltrewards/internal/repository"
	"voltrewards/internal/service"
)

// NewSessionsMeHandler returns GET /sessions/me handler.
func NewSessionsMeHandler(sessions *repository.SessionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID, ok := middleware.DriverIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing driver identity")
			return
		}

		list, err := sessions.ListByDriver(r.Context(), driverID, 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch sessions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
	}
}

// NewGrantsMeHandler returns GET /grants/me handler.
func NewGrantsMeHandler(grants *repository.GrantRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID, ok := middleware.DriverIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing driver identity")
			return
		}

		list, err := grants.ListByDriver(r.Context(), driverID, 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch grants")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"grants": list})
	}
}

// NewWalletMeHandler returns GET /wallet/me handler.
func NewWalletMeHandler(ledger *service.RewardLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID, ok := middleware.DriverIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing driver identity")
			return
		}

		balance, err := ledger.WalletBalance(r.Context(), driverID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch wallet")
			return
		}
		transactions, err := ledger.Transactions(r.Context(), driverID, 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch transactions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"balance_cents": balance,
			"transactions":  transactions,
		})
	}
}

// NewHealthHandler returns GET /health handler.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
