// Package notify registers the device for push notifications after sign-in
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/service"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
)

const defaultRegisterTimeout = 10 * time.Second

// DeviceRegistrar posts the device token to the ledger once per sign-in.
// Registration runs in the background and failures are only logged.
type DeviceRegistrar struct {
	ledger      service.LedgerAPI
	deviceToken string
	timeout     time.Duration
	logger      logger.Logger
	wg          sync.WaitGroup
}

// NewDeviceRegistrar creates a registrar for deviceToken
func NewDeviceRegistrar(ledger service.LedgerAPI, deviceToken string, log logger.Logger) *DeviceRegistrar {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &DeviceRegistrar{
		ledger:      ledger,
		deviceToken: deviceToken,
		timeout:     defaultRegisterTimeout,
		logger:      log.WithField("component", "device_registrar"),
	}
}

// OnSignIn starts the registration and returns immediately
func (r *DeviceRegistrar) OnSignIn(ctx context.Context, id entity.Identity) {
	if r.deviceToken == "" {
		r.logger.Debug("No device token, skipping registration", map[string]interface{}{
			"user_id": id.UserID,
		})
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.ledger.SaveToken(ctx, r.deviceToken); err != nil {
			r.logger.Warn("Device registration failed", map[string]interface{}{
				"user_id": id.UserID,
				"error":   err.Error(),
			})
			return
		}

		r.logger.Info("Device registered", map[string]interface{}{
			"user_id": id.UserID,
		})
	}()
}

// Wait blocks until every started registration has finished
func (r *DeviceRegistrar) Wait() {
	r.wg.Wait()
}
