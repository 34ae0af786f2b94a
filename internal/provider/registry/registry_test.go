package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-service/internal/model"
)

func TestNew(t *testing.T) {
	for _, name := range []model.Provider{model.ProviderStripe, model.ProviderMidtrans, model.ProviderSandbox} {
		p, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
		assert.NotEmpty(t, p.SignatureHeader())
	}

	_, err := New("paypal")
	assert.Error(t, err)
}
