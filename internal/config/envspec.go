//go:generate go run ../../tools/gen-env-doc/main.go
package config

import "fmt"

const (
	Datadir             = "DATADIR"
	LogLevel            = "LOG_LEVEL"
	Port                = "PORT"
	Network             = "NETWORK"
	BoltzURL            = "BOLTZ_URL"
	BoltzWSURL          = "BOLTZ_WS_URL"
	SwapTimeout         = "SWAP_TIMEOUT"
	WsSubscribeTimeout  = "WS_SUBSCRIBE_TIMEOUT"
	WsReconnectAttempts = "WS_RECONNECT_ATTEMPTS"
	WsReconnectBackoff  = "WS_RECONNECT_BACKOFF"
	ClaimFeeRate        = "CLAIM_FEE_RATE"
	Unit                = "UNIT"
	FiatCurrency        = "FIAT_CURRENCY"
	FiatRate            = "FIAT_RATE"
	NoDB                = "NO_DB"
	TLSCert             = "TLS_CERT"
	TLSKey              = "TLS_KEY"
)

const (
	DefaultDatadir             = appName
	DefaultLogLevel            = 4
	DefaultPort                = 7000
	DefaultNetwork             = "bitcoin"
	DefaultSwapTimeout         = 3600
	DefaultWsSubscribeTimeout  = 5
	DefaultWsReconnectAttempts = 3
	DefaultWsReconnectBackoff  = 2
	DefaultClaimFeeRate        = 2
	DefaultUnit                = "sat"
	DefaultNoDB                = false
)

type EnvVar struct {
	Name        string // short name under the SWAPD_ prefix (e.g., "DATADIR")
	FullName    string // e.g., "SWAPD_DATADIR"
	Type        string // human-readable type
	Default     string // default value as a string ("" if none)
	Description string // one-liner for docs
	Notes       string // optional: constraints, examples, etc.
}

func EnvSpecs() []EnvVar {
	const P = envPrefix + "_"

	return []EnvVar{
		{
			Name:        Datadir,
			FullName:    P + Datadir,
			Type:        "string (path)",
			Default:     DefaultDatadir,
			Description: "Data directory for the swap daemon state",
		},
		{
			Name:        LogLevel,
			FullName:    P + LogLevel,
			Type:        "uint32 (0–6)",
			Default:     fmt.Sprintf("%d", DefaultLogLevel),
			Description: "Log verbosity (higher = more verbose)",
		},
		{
			Name:        Port,
			FullName:    P + Port,
			Type:        "uint32 (port)",
			Default:     fmt.Sprintf("%d", DefaultPort),
			Description: "gRPC health and REST API port",
		},
		{
			Name:        Network,
			FullName:    P + Network,
			Type:        "string",
			Default:     DefaultNetwork,
			Description: "Bitcoin network: bitcoin | testnet | signet | regtest",
		},
		{
			Name:        BoltzURL,
			FullName:    P + BoltzURL,
			Type:        "string (URL)",
			Default:     "",
			Description: "Swap service HTTP endpoint (e.g., http://boltz:9001)",
			Notes:       "Required.",
		},
		{
			Name:        BoltzWSURL,
			FullName:    P + BoltzWSURL,
			Type:        "string (WS URL)",
			Default:     "",
			Description: "Swap service WebSocket endpoint (e.g., ws://boltz:9004/v2/ws)",
			Notes:       "Derived from BOLTZ_URL when unset.",
		},
		{
			Name:        SwapTimeout,
			FullName:    P + SwapTimeout,
			Type:        "uint32 (seconds)",
			Default:     fmt.Sprintf("%d", DefaultSwapTimeout),
			Description: "Time after which a running swap is abandoned",
			Notes:       "0 disables the timeout.",
		},
		{
			Name:        WsSubscribeTimeout,
			FullName:    P + WsSubscribeTimeout,
			Type:        "uint32 (seconds)",
			Default:     fmt.Sprintf("%d", DefaultWsSubscribeTimeout),
			Description: "Time to wait for the swap status subscription ack",
		},
		{
			Name:        WsReconnectAttempts,
			FullName:    P + WsReconnectAttempts,
			Type:        "uint32",
			Default:     fmt.Sprintf("%d", DefaultWsReconnectAttempts),
			Description: "Reconnect attempts when the status channel drops",
			Notes:       "0 fails the swap on the first drop.",
		},
		{
			Name:        WsReconnectBackoff,
			FullName:    P + WsReconnectBackoff,
			Type:        "uint32 (seconds)",
			Default:     fmt.Sprintf("%d", DefaultWsReconnectBackoff),
			Description: "Delay between reconnect attempts",
		},
		{
			Name:        ClaimFeeRate,
			FullName:    P + ClaimFeeRate,
			Type:        "uint64 (sat/vB)",
			Default:     fmt.Sprintf("%d", DefaultClaimFeeRate),
			Description: "Fee rate of reverse swap claim transactions",
		},
		{
			Name:        Unit,
			FullName:    P + Unit,
			Type:        "string",
			Default:     DefaultUnit,
			Description: "Display unit: sat | btc | fiat",
			Notes:       "fiat → set FIAT_CURRENCY and FIAT_RATE",
		},
		{
			Name:        FiatCurrency,
			FullName:    P + FiatCurrency,
			Type:        "string",
			Default:     "",
			Description: "Fiat currency code (e.g., EUR)",
		},
		{
			Name:        FiatRate,
			FullName:    P + FiatRate,
			Type:        "string (decimal)",
			Default:     "",
			Description: "Price of one BTC in FIAT_CURRENCY",
		},
		{
			Name:        NoDB,
			FullName:    P + NoDB,
			Type:        "bool",
			Default:     fmt.Sprintf("%v", DefaultNoDB),
			Description: "Keep swap records in memory only",
		},
		{
			Name:        TLSCert,
			FullName:    P + TLSCert,
			Type:        "string (path)",
			Default:     "",
			Description: "PEM certificate served on PORT",
			Notes:       "set together with TLS_KEY to enable TLS",
		},
		{
			Name:        TLSKey,
			FullName:    P + TLSKey,
			Type:        "string (path)",
			Default:     "",
			Description: "PEM private key of TLS_CERT",
		},
	}
}
