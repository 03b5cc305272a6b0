package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	cfg "github.com/ArkLabsHQ/subswap/internal/config"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		datadir := t.TempDir()
		t.Setenv("SWAPD_DATADIR", datadir)
		t.Setenv("SWAPD_BOLTZ_URL", "http://localhost:9001")

		config, err := cfg.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, datadir, config.Datadir)
		require.Equal(t, filepath.Join(datadir, "db"), config.DbDir())
		require.Equal(t, uint32(4), config.LogLevel)
		require.Equal(t, uint32(7000), config.Port)
		require.Equal(t, &chaincfg.MainNetParams, config.NetworkParams())
		require.Equal(t, time.Hour, config.SwapTimeoutDuration())
		require.Equal(t, "sat", config.Unit)

		handlerConfig := config.SwapHandlerConfig()
		require.Equal(t, 5*time.Second, handlerConfig.SubscribeTimeout)
		require.Equal(t, 3, handlerConfig.Reconnect.MaxAttempts)
		require.Equal(t, 2*time.Second, handlerConfig.Reconnect.Backoff)
		require.Equal(t, uint64(2), handlerConfig.ClaimFeeRate)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("SWAPD_DATADIR", t.TempDir())
		t.Setenv("SWAPD_BOLTZ_URL", "https://api.boltz.exchange")
		t.Setenv("SWAPD_BOLTZ_WS_URL", "wss://api.boltz.exchange/v2/ws")
		t.Setenv("SWAPD_NETWORK", "regtest")
		t.Setenv("SWAPD_PORT", "7777")
		t.Setenv("SWAPD_SWAP_TIMEOUT", "0")
		t.Setenv("SWAPD_WS_RECONNECT_ATTEMPTS", "0")
		t.Setenv("SWAPD_CLAIM_FEE_RATE", "10")
		t.Setenv("SWAPD_UNIT", "fiat")
		t.Setenv("SWAPD_FIAT_CURRENCY", "EUR")
		t.Setenv("SWAPD_FIAT_RATE", "60000")
		t.Setenv("SWAPD_NO_DB", "true")

		config, err := cfg.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, uint32(7777), config.Port)
		require.Equal(t, &chaincfg.RegressionNetParams, config.NetworkParams())
		require.Zero(t, config.SwapTimeoutDuration())
		require.Empty(t, config.DbDir())
		require.Equal(t, "EUR", config.FiatCurrency)

		handlerConfig := config.SwapHandlerConfig()
		require.Zero(t, handlerConfig.Reconnect.MaxAttempts)
		require.Equal(t, uint64(10), handlerConfig.ClaimFeeRate)
	})

	t.Run("tls", func(t *testing.T) {
		datadir := t.TempDir()
		certPath := filepath.Join(datadir, "cert.pem")
		keyPath := filepath.Join(datadir, "key.pem")
		require.NoError(t, os.WriteFile(certPath, []byte("cert"), 0o600))
		require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))

		t.Setenv("SWAPD_DATADIR", datadir)
		t.Setenv("SWAPD_BOLTZ_URL", "http://localhost:9001")
		t.Setenv("SWAPD_TLS_CERT", certPath)
		t.Setenv("SWAPD_TLS_KEY", keyPath)

		config, err := cfg.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, certPath, config.TLSCert)
		require.Equal(t, keyPath, config.TLSKey)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name string
			env  map[string]string
		}{
			{"missing boltz url", map[string]string{}},
			{"invalid boltz url", map[string]string{"SWAPD_BOLTZ_URL": "localhost:9001"}},
			{"invalid ws url", map[string]string{
				"SWAPD_BOLTZ_URL":    "http://localhost:9001",
				"SWAPD_BOLTZ_WS_URL": "http://localhost:9004",
			}},
			{"unknown network", map[string]string{
				"SWAPD_BOLTZ_URL": "http://localhost:9001",
				"SWAPD_NETWORK":   "liquid",
			}},
			{"unknown unit", map[string]string{
				"SWAPD_BOLTZ_URL": "http://localhost:9001",
				"SWAPD_UNIT":      "bits",
			}},
			{"fiat without rate", map[string]string{
				"SWAPD_BOLTZ_URL":     "http://localhost:9001",
				"SWAPD_UNIT":          "fiat",
				"SWAPD_FIAT_CURRENCY": "USD",
			}},
			{"zero claim fee rate", map[string]string{
				"SWAPD_BOLTZ_URL":      "http://localhost:9001",
				"SWAPD_CLAIM_FEE_RATE": "0",
			}},
			{"tls cert without key", map[string]string{
				"SWAPD_BOLTZ_URL": "http://localhost:9001",
				"SWAPD_TLS_CERT":  "/tmp/swapd-cert.pem",
			}},
			{"missing tls files", map[string]string{
				"SWAPD_BOLTZ_URL": "http://localhost:9001",
				"SWAPD_TLS_CERT":  "/nonexistent/cert.pem",
				"SWAPD_TLS_KEY":   "/nonexistent/key.pem",
			}},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				t.Setenv("SWAPD_DATADIR", t.TempDir())
				for k, v := range f.env {
					t.Setenv(k, v)
				}

				config, err := cfg.LoadConfig()
				require.Error(t, err)
				require.Nil(t, config)
			})
		}
	})
}

func TestParseNetwork(t *testing.T) {
	fixtures := []struct {
		name     string
		expected *chaincfg.Params
	}{
		{"bitcoin", &chaincfg.MainNetParams},
		{"mainnet", &chaincfg.MainNetParams},
		{"testnet", &chaincfg.TestNet3Params},
		{"signet", &chaincfg.SigNetParams},
		{"Regtest", &chaincfg.RegressionNetParams},
	}
	for _, f := range fixtures {
		network, err := cfg.ParseNetwork(f.name)
		require.NoError(t, err)
		require.Equal(t, f.expected, network)
	}

	_, err := cfg.ParseNetwork("liquid")
	require.Error(t, err)
}
