package provider_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-service/internal/config"
	"payment-service/internal/model"
	"payment-service/internal/provider"
	"payment-service/internal/testhelpers"
)

func paymentsConfig(active string) config.Payments {
	return config.Payments{
		ActiveProvider:   active,
		GatewayTimeoutMs: 1000,
		Providers: map[string]config.Provider{
			"stripe":   {APIKey: "sk_test", WebhookSecret: "whsec"},
			"midtrans": {SecretKey: "server-key"},
			"sandbox":  {APIKey: "key", WebhookSecret: "sandbox-secret"},
		},
	}
}

func TestSelector_ActiveIsBuiltOnce(t *testing.T) {
	fake := testhelpers.NewFakeProvider(model.ProviderStripe)
	s, err := provider.NewSelector(paymentsConfig("stripe"), testhelpers.FakeFactory(fake))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Active()
			assert.NoError(t, err)
			assert.Same(t, fake, p)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.Calls("initialize"))
}

func TestSelector_FailedInitIsRetried(t *testing.T) {
	fake := testhelpers.NewFakeProvider(model.ProviderSandbox)
	attempts := 0
	fake.InitializeFunc = func(cfg provider.Config) error {
		attempts++
		if attempts == 1 {
			return errors.New("credentials rejected")
		}
		return nil
	}

	s, err := provider.NewSelector(paymentsConfig("sandbox"), testhelpers.FakeFactory(fake))
	require.NoError(t, err)

	_, err = s.Active()
	require.Error(t, err)

	p, err := s.Active()
	require.NoError(t, err)
	assert.Same(t, fake, p)
	assert.Equal(t, 2, attempts)
}

func TestSelector_ForProvider(t *testing.T) {
	stripe := testhelpers.NewFakeProvider(model.ProviderStripe)
	sandbox := testhelpers.NewFakeProvider(model.ProviderSandbox)
	s, err := provider.NewSelector(paymentsConfig("stripe"), testhelpers.FakeFactory(stripe, sandbox))
	require.NoError(t, err)

	p, err := s.ForProvider(model.ProviderSandbox)
	require.NoError(t, err)
	assert.Same(t, sandbox, p)

	_, err = s.ForProvider(model.ProviderSandbox)
	require.NoError(t, err)
	assert.Equal(t, 2, sandbox.Calls("initialize"), "non-active providers are not cached")

	p, err = s.ForProvider(model.ProviderStripe)
	require.NoError(t, err)
	assert.Same(t, stripe, p)
	_, _ = s.Active()
	assert.Equal(t, 1, stripe.Calls("initialize"))
}

func TestSelector_PassesCredentials(t *testing.T) {
	fake := testhelpers.NewFakeProvider(model.ProviderStripe)
	var got provider.Config
	fake.InitializeFunc = func(cfg provider.Config) error {
		got = cfg
		return nil
	}

	s, err := provider.NewSelector(paymentsConfig("stripe"), testhelpers.FakeFactory(fake))
	require.NoError(t, err)
	_, err = s.Active()
	require.NoError(t, err)

	assert.Equal(t, "sk_test", got.APIKey)
	assert.Equal(t, "whsec", got.WebhookSecret)
	assert.Equal(t, int64(1000), got.Timeout.Milliseconds())
}

func TestSelector_UnknownActiveProvider(t *testing.T) {
	_, err := provider.NewSelector(paymentsConfig("paypal"), testhelpers.FakeFactory())
	assert.Error(t, err)
}

func TestSelector_WebhookSecret(t *testing.T) {
	s, err := provider.NewSelector(paymentsConfig("sandbox"), testhelpers.FakeFactory())
	require.NoError(t, err)

	assert.Equal(t, "sandbox-secret", s.WebhookSecret(model.ProviderSandbox))
	assert.Equal(t, "server-key", s.WebhookSecret(model.ProviderMidtrans))
	assert.Empty(t, s.WebhookSecret("paypal"))
}
