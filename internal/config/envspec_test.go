package config_test

import (
	"fmt"
	"reflect"
	"testing"

	cfg "github.com/ArkLabsHQ/subswap/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestSpecMatchesViperDefaults(t *testing.T) {
	v := viper.New()
	v.SetEnvPrefix("SWAPD")
	v.AutomaticEnv()

	v.SetDefault(cfg.Datadir, cfg.DefaultDatadir)
	v.SetDefault(cfg.LogLevel, cfg.DefaultLogLevel)
	v.SetDefault(cfg.Port, cfg.DefaultPort)
	v.SetDefault(cfg.Network, cfg.DefaultNetwork)
	v.SetDefault(cfg.SwapTimeout, cfg.DefaultSwapTimeout)
	v.SetDefault(cfg.WsSubscribeTimeout, cfg.DefaultWsSubscribeTimeout)
	v.SetDefault(cfg.WsReconnectAttempts, cfg.DefaultWsReconnectAttempts)
	v.SetDefault(cfg.WsReconnectBackoff, cfg.DefaultWsReconnectBackoff)
	v.SetDefault(cfg.ClaimFeeRate, cfg.DefaultClaimFeeRate)
	v.SetDefault(cfg.Unit, cfg.DefaultUnit)
	v.SetDefault(cfg.NoDB, cfg.DefaultNoDB)

	want := map[string]string{}
	for _, s := range cfg.EnvSpecs() {
		if s.Default == "" {
			continue
		}
		want[s.Name] = s.Default
	}

	for k, dv := range want {
		got := v.Get(k)
		require.Equal(t, coerce(got), dv, "type mismatch for %s: viper=%T spec=%T", k, got, dv)
	}
}

func TestSpecMatchesStructTags(t *testing.T) {
	tags := map[string]string{}
	typ := reflect.TypeOf(cfg.Config{})
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		tags[f.Tag.Get("mapstructure")] = f.Tag.Get("envDefault")
	}

	specs := cfg.EnvSpecs()
	require.Len(t, specs, len(tags))
	for _, s := range specs {
		def, ok := tags[s.Name]
		require.True(t, ok, "%s has no config field", s.Name)
		require.Equal(t, "SWAPD_"+s.Name, s.FullName)
		require.Equal(t, s.Default, def, "default mismatch for %s", s.Name)
	}
}

func coerce(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", x)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32, float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
