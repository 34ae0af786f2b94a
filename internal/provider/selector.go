package provider

import (
	"fmt"
	"sync"

	"payment-service/internal/config"
	"payment-service/internal/model"
)

// Factory builds an uninitialized adapter for name.
type Factory func(name model.Provider) (Provider, error)

// Selector hands out initialized providers. The active provider is built once
// per process; any other provider is built on demand and not cached.
type Selector struct {
	factory Factory
	active  model.Provider
	configs map[model.Provider]Config

	mu     sync.Mutex
	cached Provider
}

func NewSelector(cfg config.Payments, factory Factory) (*Selector, error) {
	active, err := model.ParseProvider(cfg.ActiveProvider)
	if err != nil {
		return nil, err
	}

	timeout := cfg.GatewayTimeout()
	configs := make(map[model.Provider]Config, len(cfg.Providers))
	for name, p := range cfg.Providers {
		configs[model.Provider(name)] = Config{
			APIKey:        p.APIKey,
			SecretKey:     p.SecretKey,
			WebhookSecret: p.WebhookSecret,
			BaseURL:       p.BaseURL,
			Environment:   p.Environment,
			Timeout:       timeout,
		}
	}

	return &Selector{factory: factory, active: active, configs: configs}, nil
}

func (s *Selector) ActiveName() model.Provider {
	return s.active
}

// Active returns the configured active provider. A failed initialization is
// not remembered, so the next call tries again.
func (s *Selector) Active() (Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	p, err := s.build(s.active)
	if err != nil {
		return nil, err
	}
	s.cached = p
	return p, nil
}

// ForProvider returns a provider for name, used for webhooks and for payments
// opened with a gateway that is no longer the active one.
func (s *Selector) ForProvider(name model.Provider) (Provider, error) {
	if name == s.active {
		return s.Active()
	}
	return s.build(name)
}

// WebhookSecret is the secret signatures from name are checked against.
// Midtrans signs notifications with the server key unless a dedicated
// secret is configured.
func (s *Selector) WebhookSecret(name model.Provider) string {
	cfg := s.configs[name]
	if cfg.WebhookSecret == "" && name == model.ProviderMidtrans {
		return cfg.SecretKey
	}
	return cfg.WebhookSecret
}

func (s *Selector) build(name model.Provider) (Provider, error) {
	cfg, ok := s.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: no configuration for %s", ErrMissingCredentials, name)
	}

	p, err := s.factory(name)
	if err != nil {
		return nil, err
	}
	if err := p.Initialize(cfg); err != nil {
		return nil, fmt.Errorf("initializing %s: %w", name, err)
	}
	return p, nil
}
