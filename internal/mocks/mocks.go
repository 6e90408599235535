// internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
)

// MockLedgerAPI mocks the LedgerAPI interface
type MockLedgerAPI struct {
	mock.Mock
}

func (m *MockLedgerAPI) GetRates(ctx context.Context) (entity.RateTable, error) {
	args := m.Called(ctx)
	return args.Get(0).(entity.RateTable), args.Error(1)
}

func (m *MockLedgerAPI) GetArchive(ctx context.Context) ([]entity.ArchiveEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ArchiveEntry), args.Error(1)
}

func (m *MockLedgerAPI) GetUser(ctx context.Context) (*entity.UserSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserSnapshot), args.Error(1)
}

func (m *MockLedgerAPI) SubmitTransaction(ctx context.Context, intent entity.Intent) (*entity.UserSnapshot, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserSnapshot), args.Error(1)
}

func (m *MockLedgerAPI) Deposit(ctx context.Context, intent entity.Intent) (*entity.UserSnapshot, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserSnapshot), args.Error(1)
}

func (m *MockLedgerAPI) SaveToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// MockLedgerRepository mocks the LedgerRepository interface
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) FindSnapshot(ctx context.Context, userID string) (*entity.UserSnapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserSnapshot), args.Error(1)
}

func (m *MockLedgerRepository) Apply(ctx context.Context, userID string, debit, credit entity.Balance, tx entity.Transaction) (*entity.UserSnapshot, error) {
	args := m.Called(ctx, userID, debit, credit, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserSnapshot), args.Error(1)
}

func (m *MockLedgerRepository) StoreDeviceToken(ctx context.Context, userID, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *MockLedgerRepository) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockRateRepository mocks the RateRepository interface
type MockRateRepository struct {
	mock.Mock
}

func (m *MockRateRepository) Current(ctx context.Context) (entity.RateTable, error) {
	args := m.Called(ctx)
	return args.Get(0).(entity.RateTable), args.Error(1)
}

func (m *MockRateRepository) Archive(ctx context.Context, windowDays int) ([]entity.ArchiveEntry, error) {
	args := m.Called(ctx, windowDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ArchiveEntry), args.Error(1)
}

func (m *MockRateRepository) StoreRates(ctx context.Context, table entity.RateTable) error {
	args := m.Called(ctx, table)
	return args.Error(0)
}

// MockLogger mocks the logger interface
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Info(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Warn(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Error(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Fatal(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) WithField(key string, value interface{}) logger.Logger {
	m.Called(key, value)
	return m
}

func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger {
	m.Called(fields)
	return m
}
