package app

import (
	"net/http"
	"os"

	"securechat/internal/domain"
	"securechat/internal/relay"
	devicesvc "securechat/internal/services/device"
	messagesvc "securechat/internal/services/message"
	prekeysvc "securechat/internal/services/prekey"
	sessionsvc "securechat/internal/services/session"
	"securechat/internal/store"
	"securechat/internal/wire"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config   Config
	Device   *devicesvc.Service
	Prekeys  *prekeysvc.Service
	Sessions *sessionsvc.Service
	Messages *messagesvc.Service
	Relay    domain.RelayClient // nil without a relay URL
	HTTP     *http.Client
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}

	kdf, err := store.KDFParamsFor(cfg.DeviceKDF)
	if err != nil {
		return nil, err
	}

	// File-based stores
	deviceStore := store.NewDeviceFileStore(cfg.Home).WithKDFParams(kdf)
	sessionStore := store.NewSessionFileStore(cfg.Home)
	contactStore := store.NewContactFileStore(cfg.Home)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var rc domain.RelayClient
	if cfg.RelayURL != "" {
		codec, err := wire.ForFormat(cfg.WireFormat)
		if err != nil {
			return nil, err
		}
		rc = relay.NewHTTP(cfg.RelayURL, httpClient, codec)
	}

	// High-level services
	deviceSvc := devicesvc.New(deviceStore, cfg.OneTimePreKeys)
	sessionSvc := sessionsvc.New(deviceSvc, sessionStore, contactStore, sessionsvc.Limits{
		MaxSkip:        cfg.MaxSkip,
		MaxMessageKeys: cfg.MaxMessageKeys,
	})

	return &Wire{
		Config:   cfg,
		Device:   deviceSvc,
		Prekeys:  prekeysvc.New(deviceSvc, rc),
		Sessions: sessionSvc,
		Messages: messagesvc.New(deviceSvc, sessionSvc, rc),
		Relay:    rc,
		HTTP:     httpClient,
	}, nil
}
