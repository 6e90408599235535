package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/service"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/metrics"
)

const (
	ratesPath       = "/rates"
	archivePath     = "/rates/archive"
	userPath        = "/user"
	transactionPath = "/transaction"
	depositPath     = "/deposit"
	saveTokenPath   = "/save-token"

	// RequestIDHeader carries the per-request correlation id
	RequestIDHeader = "X-Request-ID"
)

// LedgerAPIClient implements the LedgerAPI interface over HTTP/JSON.
// Every call is a single attempt; retry policy belongs to the caller.
type LedgerAPIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	tokens service.TokenSource
}

// NewLedgerAPIClient creates a new ledger client
func NewLedgerAPIClient(baseURL string, httpClient *http.Client, log logger.Logger, m *metrics.Metrics) *LedgerAPIClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &LedgerAPIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     log.WithField("component", "ledger_api"),
		metrics:    m,
	}
}

// SetTokenSource attaches (or, with nil, detaches) the bearer token supplier
func (c *LedgerAPIClient) SetTokenSource(src service.TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = src
}

func (c *LedgerAPIClient) tokenSource() service.TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// RatesResponse is the wire shape of a rate table
type RatesResponse struct {
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// TransactionDTO is the wire shape of a ledger entry
type TransactionDTO struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Rate      decimal.Decimal `json:"rate"`
	Timestamp string          `json:"timestamp"`
	BaseValue decimal.Decimal `json:"base_value"`
}

// UserResponse is the wire shape of the user snapshot
type UserResponse struct {
	Balance      map[string]decimal.Decimal `json:"balance"`
	Transactions []TransactionDTO           `json:"transactions"`
}

// TransactionRequest is the body of POST /transaction
type TransactionRequest struct {
	Type     string  `json:"type"`
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// DepositRequest is the body of POST /deposit
type DepositRequest struct {
	Amount float64 `json:"amount"`
}

// SaveTokenRequest is the body of POST /save-token
type SaveTokenRequest struct {
	Token string `json:"token"`
}

// ErrorBody is the wire shape of a failed request
type ErrorBody struct {
	Error string `json:"error"`
}

// GetRates retrieves the current rate table
func (c *LedgerAPIClient) GetRates(ctx context.Context) (entity.RateTable, error) {
	var resp RatesResponse
	if err := c.do(ctx, http.MethodGet, ratesPath, nil, &resp); err != nil {
		return entity.RateTable{}, err
	}
	return c.toRateTable(resp), nil
}

// GetArchive retrieves the rate archive. Wire order carries no meaning.
func (c *LedgerAPIClient) GetArchive(ctx context.Context) ([]entity.ArchiveEntry, error) {
	var resp map[string]RatesResponse
	if err := c.do(ctx, http.MethodGet, archivePath, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]entity.ArchiveEntry, 0, len(resp))
	for key, item := range resp {
		if item.Date == "" {
			item.Date = key
		}
		table := c.toRateTable(item)
		if table.Date.IsZero() {
			c.logger.Warn("Skipping archive entry with unparseable date", map[string]interface{}{
				"key": key,
			})
			continue
		}
		entries = append(entries, entity.ArchiveEntry{Date: table.Date, Table: table})
	}

	return entries, nil
}

// GetUser retrieves the signed-in user's snapshot
func (c *LedgerAPIClient) GetUser(ctx context.Context) (*entity.UserSnapshot, error) {
	var resp UserResponse
	if err := c.do(ctx, http.MethodGet, userPath, nil, &resp); err != nil {
		return nil, err
	}
	return c.toSnapshot(resp), nil
}

// SubmitTransaction asks the ledger to buy or sell a foreign currency
func (c *LedgerAPIClient) SubmitTransaction(ctx context.Context, intent entity.Intent) (*entity.UserSnapshot, error) {
	req := TransactionRequest{
		Type:     string(intent.Kind),
		Currency: intent.Currency.String(),
		Amount:   intent.Amount.InexactFloat64(),
	}
	return c.mutate(ctx, transactionPath, req)
}

// Deposit asks the ledger to credit the base currency
func (c *LedgerAPIClient) Deposit(ctx context.Context, intent entity.Intent) (*entity.UserSnapshot, error) {
	return c.mutate(ctx, depositPath, DepositRequest{Amount: intent.Amount.InexactFloat64()})
}

// SaveToken registers a push-notification device token
func (c *LedgerAPIClient) SaveToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, saveTokenPath, SaveTokenRequest{Token: token}, nil)
}

func (c *LedgerAPIClient) mutate(ctx context.Context, path string, body interface{}) (*entity.UserSnapshot, error) {
	var resp UserResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	// Some ledgers answer mutations with an empty body
	if resp.Balance == nil {
		return nil, nil
	}
	return c.toSnapshot(resp), nil
}

// do executes one request and decodes a 2xx JSON body into out
func (c *LedgerAPIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	operation := method + " " + path
	requestID := uuid.New().String()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if src := c.tokenSource(); src != nil {
		token, err := src.Token(ctx)
		if err != nil {
			c.metrics.LedgerRequest(operation, "auth")
			var engineErr *entity.Error
			if errors.As(err, &engineErr) {
				return err
			}
			return &entity.Error{Kind: entity.KindAuth, Message: "token unavailable", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("Ledger request", map[string]interface{}{
		"request_id": requestID,
		"operation":  operation,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.LedgerRequest(operation, "transport")
		c.logger.Warn("Ledger request failed", map[string]interface{}{
			"request_id": requestID,
			"operation":  operation,
			"error":      err.Error(),
		})
		return entity.NewNetworkError(fmt.Errorf("%s: %w", operation, err))
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Error closing response body", map[string]interface{}{
				"request_id": requestID,
				"error":      closeErr.Error(),
			})
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.LedgerRequest(operation, "transport")
		return entity.NewNetworkError(fmt.Errorf("failed to read response body: %w", err))
	}

	c.metrics.LedgerRequest(operation, statusClass(resp.StatusCode))
	c.logger.Debug("Ledger response", map[string]interface{}{
		"request_id": requestID,
		"operation":  operation,
		"status":     resp.StatusCode,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mapStatus(resp.StatusCode, bodyBytes)
	}

	if out == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return entity.NewNetworkError(fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

// mapStatus converts a non-2xx response into the engine's error taxonomy
func mapStatus(status int, body []byte) error {
	var eb ErrorBody
	_ = json.Unmarshal(body, &eb)
	msg := strings.TrimSpace(eb.Error)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if msg == "" {
			msg = "token rejected"
		}
		return entity.NewAuthError(msg, status)
	case status >= 400 && status < 500:
		if msg == "" {
			msg = http.StatusText(status)
		}
		return entity.NewBusinessRuleError(msg, status)
	default:
		if msg == "" {
			msg = "server unavailable"
		}
		return &entity.Error{Kind: entity.KindNetwork, Message: msg, StatusCode: status}
	}
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

func (c *LedgerAPIClient) toRateTable(resp RatesResponse) entity.RateTable {
	rates := make(map[entity.Currency]decimal.Decimal, len(resp.Rates))
	for code, rate := range resp.Rates {
		cur, err := entity.ParseCurrency(code)
		if err != nil {
			c.logger.Debug("Ignoring rate for unsupported currency", map[string]interface{}{
				"currency": code,
			})
			continue
		}
		rates[cur] = rate
	}
	date, _ := parseDate(resp.Date)
	return entity.NewRateTable(date, rates)
}

func (c *LedgerAPIClient) toSnapshot(resp UserResponse) *entity.UserSnapshot {
	balance := make(entity.Balance, len(resp.Balance))
	for code, amt := range resp.Balance {
		cur, err := entity.ParseCurrency(code)
		if err != nil {
			c.logger.Warn("Ignoring balance in unsupported currency", map[string]interface{}{
				"currency": code,
			})
			continue
		}
		if amt.IsNegative() {
			amt = decimal.Zero
		}
		balance[cur] = amt
	}

	txs := make([]entity.Transaction, 0, len(resp.Transactions))
	for _, dto := range resp.Transactions {
		kind, err := entity.ParseTransactionKind(dto.Type)
		if err != nil {
			c.logger.Warn("Ignoring transaction of unknown type", map[string]interface{}{
				"id":   dto.ID,
				"type": dto.Type,
			})
			continue
		}
		cur, err := entity.ParseCurrency(dto.Currency)
		if err != nil {
			c.logger.Warn("Ignoring transaction in unsupported currency", map[string]interface{}{
				"id":       dto.ID,
				"currency": dto.Currency,
			})
			continue
		}
		if !dto.Rate.IsPositive() {
			c.logger.Warn("Ignoring transaction without a positive rate", map[string]interface{}{
				"id":   dto.ID,
				"rate": dto.Rate.String(),
			})
			continue
		}
		ts, _ := parseDate(dto.Timestamp)
		txs = append(txs, entity.Transaction{
			ID:                dto.ID,
			Kind:              kind,
			Currency:          cur,
			Amount:            dto.Amount,
			RateApplied:       dto.Rate,
			Timestamp:         ts,
			BaseCurrencyValue: dto.BaseValue,
		})
	}

	return &entity.UserSnapshot{Balance: balance, Transactions: txs}
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(entity.DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
