// Package handler internal/infrastructure/handler/ledger_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/application/ledger"
	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/api"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/middleware"
)

// LedgerHandler serves the sandbox ledger's REST API
type LedgerHandler struct {
	service *ledger.LedgerService
	logger  logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(service *ledger.LedgerService, log logger.Logger) *LedgerHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &LedgerHandler{
		service: service,
		logger:  log,
	}
}

// GetRates handles GET /rates
func (h *LedgerHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	table, err := h.service.CurrentRates(r.Context())
	if err != nil {
		h.logger.Error("Failed to load rates", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "rates unavailable", http.StatusServiceUnavailable, requestID)
		return
	}

	sendJSON(w, http.StatusOK, toRatesResponse(table))
}

// GetArchive handles GET /rates/archive
func (h *LedgerHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	entries, err := h.service.Archive(r.Context())
	if err != nil {
		h.logger.Error("Failed to load archive", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "archive unavailable", http.StatusServiceUnavailable, requestID)
		return
	}

	sendJSON(w, http.StatusOK, toArchiveResponse(entries))
}

// GetUser handles GET /user
func (h *LedgerHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	snap, err := h.service.Snapshot(r.Context(), userID)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, toUserResponse(snap))
}

// PostTransaction handles POST /transaction
func (h *LedgerHandler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req api.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, h.logger, "invalid request body", http.StatusBadRequest, requestID)
		return
	}

	kind, err := entity.ParseTransactionKind(req.Type)
	if err != nil {
		sendErrorResponse(w, h.logger, "unsupported transaction type", http.StatusBadRequest, requestID)
		return
	}
	currency, err := entity.ParseCurrency(req.Currency)
	if err != nil {
		sendErrorResponse(w, h.logger, entity.ErrUnsupportedCurrency.Message, http.StatusBadRequest, requestID)
		return
	}

	h.logger.Debug("Transaction requested", map[string]interface{}{
		"request_id": requestID,
		"user_id":    userID,
		"type":       req.Type,
		"currency":   req.Currency,
		"amount":     req.Amount,
	})

	snap, err := h.service.Exchange(r.Context(), userID, kind, currency, decimal.NewFromFloat(req.Amount))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, toUserResponse(snap))
}

// PostDeposit handles POST /deposit
func (h *LedgerHandler) PostDeposit(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req api.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, h.logger, "invalid request body", http.StatusBadRequest, requestID)
		return
	}

	snap, err := h.service.Deposit(r.Context(), userID, decimal.NewFromFloat(req.Amount))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, toUserResponse(snap))
}

// PostSaveToken handles POST /save-token
func (h *LedgerHandler) PostSaveToken(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req api.SaveTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, h.logger, "invalid request body", http.StatusBadRequest, requestID)
		return
	}

	if err := h.service.RegisterDevice(r.Context(), userID, req.Token); err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes registers the ledger routes. Rates are public; the rest go through auth.
func (h *LedgerHandler) RegisterRoutes(router *mux.Router, auth mux.MiddlewareFunc) {
	router.HandleFunc("/rates", h.GetRates).Methods(http.MethodGet)
	router.HandleFunc("/rates/archive", h.GetArchive).Methods(http.MethodGet)

	private := router.NewRoute().Subrouter()
	if auth != nil {
		private.Use(auth)
	}
	private.HandleFunc("/user", h.GetUser).Methods(http.MethodGet)
	private.HandleFunc("/transaction", h.PostTransaction).Methods(http.MethodPost)
	private.HandleFunc("/deposit", h.PostDeposit).Methods(http.MethodPost)
	private.HandleFunc("/save-token", h.PostSaveToken).Methods(http.MethodPost)

	h.logger.Info("Ledger routes registered", map[string]interface{}{
		"routes": []string{
			"GET /rates",
			"GET /rates/archive",
			"GET /user",
			"POST /transaction",
			"POST /deposit",
			"POST /save-token",
		},
	})
}

func (h *LedgerHandler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		sendErrorResponse(w, h.logger, "unauthorized", http.StatusUnauthorized, middleware.GetRequestID(r.Context()))
		return "", false
	}
	return userID, true
}

// sendServiceError maps ledger errors onto HTTP statuses
func (h *LedgerHandler) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var e *entity.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case entity.KindValidation, entity.KindBusinessRule:
			h.logger.Info("Request rejected", map[string]interface{}{
				"request_id": requestID,
				"reason":     e.Message,
			})
			sendErrorResponse(w, h.logger, e.Message, http.StatusBadRequest, requestID)
			return
		case entity.KindAuth:
			sendErrorResponse(w, h.logger, e.Message, http.StatusUnauthorized, requestID)
			return
		}
	}

	h.logger.Error("Unexpected ledger error", map[string]interface{}{
		"request_id": requestID,
		"error":      err.Error(),
	})
	sendErrorResponse(w, h.logger, "internal server error", http.StatusInternalServerError, requestID)
}

func sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// sendErrorResponse sends a standardized error response
func sendErrorResponse(w http.ResponseWriter, log logger.Logger, message string, statusCode int, requestID string) {
	log.Debug("Sending error response", map[string]interface{}{
		"request_id":  requestID,
		"status_code": statusCode,
		"message":     message,
	})

	sendJSON(w, statusCode, ErrorResponse{
		Error:     message,
		Status:    statusCode,
		RequestID: requestID,
	})
}
