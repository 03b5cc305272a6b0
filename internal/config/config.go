package config

import (
	"fmt"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/ArkLabsHQ/subswap/internal/core/domain"
	"github.com/ArkLabsHQ/subswap/pkg/swap"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
)

const (
	envPrefix = "SWAPD"
	appName   = "subswap"
	dbFolder  = "db"
)

type Config struct {
	Datadir             string `mapstructure:"DATADIR" envDefault:"subswap" envInfo:"Data directory for the swap daemon state"`
	LogLevel            uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`
	Port                uint32 `mapstructure:"PORT" envDefault:"7000" envInfo:"gRPC and HTTP server port"`
	Network             string `mapstructure:"NETWORK" envDefault:"bitcoin" envInfo:"Bitcoin network: bitcoin | testnet | signet | regtest"`
	BoltzURL            string `mapstructure:"BOLTZ_URL" envDefault:"" envInfo:"Swap service HTTP endpoint (e.g., http://boltz:9001)"`
	BoltzWSURL          string `mapstructure:"BOLTZ_WS_URL" envDefault:"" envInfo:"Swap service WebSocket endpoint (e.g., ws://boltz:9004/v2/ws)"`
	SwapTimeout         uint32 `mapstructure:"SWAP_TIMEOUT" envDefault:"3600" envInfo:"Swap timeout in seconds, 0 disables it"`
	WsSubscribeTimeout  uint32 `mapstructure:"WS_SUBSCRIBE_TIMEOUT" envDefault:"5" envInfo:"Seconds to wait for the subscription ack"`
	WsReconnectAttempts uint32 `mapstructure:"WS_RECONNECT_ATTEMPTS" envDefault:"3" envInfo:"Status channel reconnect attempts, 0 disables reconnection"`
	WsReconnectBackoff  uint32 `mapstructure:"WS_RECONNECT_BACKOFF" envDefault:"2" envInfo:"Seconds between reconnect attempts"`
	ClaimFeeRate        uint64 `mapstructure:"CLAIM_FEE_RATE" envDefault:"2" envInfo:"Fee rate in sat/vB for reverse swap claims"`
	Unit                string `mapstructure:"UNIT" envDefault:"sat" envInfo:"Display unit: sat | btc | fiat"`
	FiatCurrency        string `mapstructure:"FIAT_CURRENCY" envDefault:"" envInfo:"Fiat currency code (when UNIT=fiat)"`
	FiatRate            string `mapstructure:"FIAT_RATE" envDefault:"" envInfo:"Fiat price of one BTC (when UNIT=fiat)"`
	NoDB                bool   `mapstructure:"NO_DB" envDefault:"false" envInfo:"Keep swap records in memory only"`
	TLSCert             string `mapstructure:"TLS_CERT" envDefault:"" envInfo:"PEM certificate of the server, enables TLS with TLS_KEY"`
	TLSKey              string `mapstructure:"TLS_KEY" envDefault:"" envInfo:"PEM private key of the server certificate"`

	network *chaincfg.Params
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.initDatadir(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) NetworkParams() *chaincfg.Params {
	return c.network
}

// DbDir is where swap records are stored, empty for an in-memory store.
func (c *Config) DbDir() string {
	if c.NoDB {
		return ""
	}
	return filepath.Join(c.Datadir, dbFolder)
}

func (c *Config) SwapTimeoutDuration() time.Duration {
	return time.Duration(c.SwapTimeout) * time.Second
}

func (c *Config) SwapHandlerConfig() swap.HandlerConfig {
	return swap.HandlerConfig{
		Network:          c.network,
		SubscribeTimeout: time.Duration(c.WsSubscribeTimeout) * time.Second,
		Reconnect: swap.ReconnectPolicy{
			MaxAttempts: int(c.WsReconnectAttempts),
			Backoff:     time.Duration(c.WsReconnectBackoff) * time.Second,
		},
		ClaimFeeRate: c.ClaimFeeRate,
	}
}

func (c *Config) validate() error {
	network, err := ParseNetwork(c.Network)
	if err != nil {
		return err
	}
	c.network = network

	if c.BoltzURL == "" {
		return fmt.Errorf("missing boltz url")
	}
	if _, err := validateURL(c.BoltzURL, "http", "https"); err != nil {
		return fmt.Errorf("invalid boltz url: %w", err)
	}
	if c.BoltzWSURL != "" {
		if _, err := validateURL(c.BoltzWSURL, "ws", "wss"); err != nil {
			return fmt.Errorf("invalid boltz websocket url: %w", err)
		}
	}

	unit, err := domain.ParseUnit(c.Unit)
	if err != nil {
		return err
	}
	if unit == domain.UnitFiat && (c.FiatCurrency == "" || c.FiatRate == "") {
		return fmt.Errorf("fiat unit requires both FIAT_CURRENCY and FIAT_RATE")
	}

	if c.ClaimFeeRate == 0 {
		return fmt.Errorf("claim fee rate must be greater than 0")
	}

	if c.TLSCert != "" {
		c.TLSCert = cleanAndExpandPath(c.TLSCert)
	}
	if c.TLSKey != "" {
		c.TLSKey = cleanAndExpandPath(c.TLSKey)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT and TLS_KEY must be set together")
	}
	for _, path := range []string{c.TLSCert, c.TLSKey} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("invalid tls file: %w", err)
		}
	}
	return nil
}

func (c *Config) initDatadir() error {
	if c.Datadir == appName {
		c.Datadir = appDatadir(appName, false)
	} else {
		c.Datadir = cleanAndExpandPath(c.Datadir)
	}
	if c.NoDB {
		return nil
	}
	return makeDirectoryIfNotExists(c.Datadir)
}

func ParseNetwork(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "bitcoin", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %s", network)
	}
}

func validateURL(rawURL string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %s", rawURL)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			return u, nil
		}
	}
	return nil, fmt.Errorf("unsupported scheme %q, must be one of %s", u.Scheme, strings.Join(schemes, ", "))
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		err := v.BindEnv(key)
		if err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data for an application.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		// LOCALAPPDATA may be missing on old versions.
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: os.ExpandEnv doesn't work with Windows-style %VARIABLE%.
	return filepath.Clean(os.ExpandEnv(path))
}
