package prekey

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"securechat/internal/domain"
	"securechat/internal/logging"
	"securechat/internal/protocol/bundle"
	"securechat/internal/protocol/devicekeys"
)

// DeviceKeys is the slice of the device service this package needs.
type DeviceKeys interface {
	Keys() (*devicekeys.Store, error)
	Persist(ctx context.Context) error
}

var (
	// ErrNoRelay is returned by Publish when no relay is configured.
	ErrNoRelay = errors.New("no relay configured")

	log = logging.For("prekey")
)

// Service builds pre-key bundles from the local device and publishes them.
type Service struct {
	device DeviceKeys
	relay  domain.RelayClient
}

// New returns a prekey service. relay may be nil for offline use.
func New(device DeviceKeys, relay domain.RelayClient) *Service {
	return &Service{device: device, relay: relay}
}

// GetPublicBundle builds one bundle, issuing at most one one-time pre-key, and
// persists the pool change.
func (s *Service) GetPublicBundle(ctx context.Context) (domain.PreKeyBundle, error) {
	keys, err := s.device.Keys()
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	b, err := bundle.Build(keys)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	if err := s.device.Persist(ctx); err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("persist device keys: %w", err)
	}
	return b, nil
}

// Replenish appends count fresh one-time pre-keys and reports the pool size.
func (s *Service) Replenish(ctx context.Context, count int) (int, error) {
	keys, err := s.device.Keys()
	if err != nil {
		return 0, err
	}
	if err := keys.Replenish(count); err != nil {
		return 0, err
	}
	if err := s.device.Persist(ctx); err != nil {
		return 0, fmt.Errorf("persist device keys: %w", err)
	}
	remaining := keys.Remaining()
	log.WithFields(logrus.Fields{"added": count, "remaining": remaining}).Info("one-time pre-keys replenished")
	return remaining, nil
}

// Publish uploads up to count bundles for self, each carrying a distinct
// one-time pre-key. Once the pool runs dry a single bundle without one is
// published and Publish stops.
func (s *Service) Publish(ctx context.Context, self domain.ContactID, count int) (int, error) {
	if s.relay == nil {
		return 0, ErrNoRelay
	}
	keys, err := s.device.Keys()
	if err != nil {
		return 0, err
	}
	if count <= 0 {
		count = 1
	}

	bundles := make([]domain.PreKeyBundle, 0, count)
	for len(bundles) < count {
		b, err := bundle.Build(keys)
		if err != nil {
			return 0, err
		}
		bundles = append(bundles, b)
		if b.OneTimePreKey == nil {
			break
		}
	}
	// Issued keys must survive a failed upload so late handshakes still succeed.
	if err := s.device.Persist(ctx); err != nil {
		return 0, fmt.Errorf("persist device keys: %w", err)
	}

	published := 0
	for _, b := range bundles {
		if err := s.relay.PublishBundle(ctx, self, b); err != nil {
			return published, fmt.Errorf("publish bundle: %w", err)
		}
		published++
	}
	log.WithFields(logrus.Fields{
		"user":      self,
		"bundles":   published,
		"remaining": keys.Remaining(),
	}).Info("bundles published")
	return published, nil
}

// Compile-time assertion that Service implements domain.PreKeyService.
var _ domain.PreKeyService = (*Service)(nil)
