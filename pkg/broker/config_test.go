package broker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ Provider }

func init() {
	RegisterProvider("stub", func(name string, cfg *ProviderConfig) (Provider, error) {
		return stubProvider{}, nil
	})
}

func TestLoadConfigFromReader(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(`
default: primary
providers:
  primary:
    type: stub
    timeout: 7s
  secondary:
    type: stub
`))
	require.NoError(t, err)

	assert.Equal(t, "primary", cfg.Default)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, 7*time.Second, cfg.Providers["primary"].Timeout)

	providers, err := cfg.BuildProviders()
	require.NoError(t, err)
	assert.Len(t, providers, 2)
	assert.NotNil(t, providers["primary"])
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BROKER_KEY", "k-123")
	t.Setenv("TEST_BROKER_SECRET", "s-456")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
providers:
  live:
    type: stub
    api_key: ${TEST_BROKER_KEY}
    api_secret: ${TEST_BROKER_SECRET}
`))
	require.NoError(t, err)
	assert.Equal(t, "k-123", cfg.Providers["live"].APIKey)
	assert.Equal(t, "s-456", cfg.Providers["live"].APISecret)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no providers", `default: x`},
		{"default not defined", "default: missing\nproviders:\n  a:\n    type: stub\n"},
		{"unknown type", "providers:\n  a:\n    type: carrier-pigeon\n"},
		{"missing type", "providers:\n  a:\n    timeout: 5s\n"},
		{"bad timeout", "providers:\n  a:\n    type: stub\n    timeout: soon\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestGetProviderInline(t *testing.T) {
	p, err := GetProvider("stub", nil)
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = GetProvider("carrier-pigeon", nil)
	assert.Error(t, err)
}
