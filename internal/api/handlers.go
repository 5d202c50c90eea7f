package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"collectwise/internal/account"
	"collectwise/internal/lookup"
	"collectwise/internal/storage"
)

// Handler serves the API routes.
type Handler struct {
	svc *lookup.Service
	log *logrus.Logger
	now func() time.Time
}

// ISO-8601 UTC with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(timestampLayout)
}

// AccountResponse is the public view of an account. Absent optional fields
// are null.
type AccountResponse struct {
	AccountNumber string      `json:"account_number"`
	DebtorName    *string     `json:"debtor_name"`
	PhoneNumber   *string     `json:"phone_number"`
	Balance       json.Number `json:"balance"`
	Status        *string     `json:"status"`
	ClientName    *string     `json:"client_name"`
}

func toResponse(a account.Account) AccountResponse {
	return AccountResponse{
		AccountNumber: a.AccountNumber,
		DebtorName:    a.DebtorName,
		PhoneNumber:   a.PhoneNumber,
		Balance:       json.Number(a.Balance.String()),
		Status:        a.Status,
		ClientName:    a.ClientName,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Example string `json:"example,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.timestamp(),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Count(r.Context())
	if err != nil {
		h.log.WithError(err).Error("stats: count accounts")
		writeError(w, http.StatusInternalServerError, "Database error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_accounts": n,
		"timestamp":      h.timestamp(),
	})
}

func (h *Handler) handleAccountPath(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "accountNumber")
	// chi matches on RawPath when it is set, leaving the segment escaped.
	if r.URL.RawPath != "" {
		if k, err := url.PathUnescape(key); err == nil {
			key = k
		}
	}
	h.lookup(w, r, key, errorResponse{
		Error:   "Bad Request",
		Message: "Account number is required",
	})
}

func (h *Handler) handleAccountQuery(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("account_number")
	h.lookup(w, r, key, errorResponse{
		Error:   "Bad Request",
		Message: "Please provide an account_number query parameter",
		Example: "/accounts?account_number=ACC001",
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, key string, badRequest errorResponse) {
	a, err := h.svc.Lookup(r.Context(), key)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toResponse(a))
	case errors.Is(err, lookup.ErrEmptyKey):
		writeJSON(w, http.StatusBadRequest, badRequest)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not Found", fmt.Sprintf("Account with number '%s' does not exist", key))
	default:
		entry := h.log.WithError(err).WithField("account_number", key)
		if errors.Is(err, storage.ErrNotInitialized) {
			entry.Error("lookup: store not initialized")
		} else {
			entry.Error("lookup: database error")
		}
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "An error occurred while looking up the account")
	}
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, struct {
		Error              string   `json:"error"`
		Message            string   `json:"message"`
		AvailableEndpoints []string `json:"available_endpoints"`
	}{
		Error:              "Not Found",
		Message:            fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path),
		AvailableEndpoints: Endpoints,
	})
}

func writeError(w http.ResponseWriter, code int, category, msg string) {
	writeJSON(w, code, errorResponse{Error: category, Message: msg})
}

// writeJSON writes payload as a JSON response.
func writeJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
