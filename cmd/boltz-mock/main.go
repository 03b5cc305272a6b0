package main

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ArkLabsHQ/subswap/internal/test/mockboltz"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetLevel(log.DebugLevel)

	cfg := mockboltz.Config{
		ListenAddr:          envOrDefault("BOLTZ_MOCK_ADDR", ":9001"),
		Network:             parseNetwork(envOrDefault("BOLTZ_MOCK_NETWORK", "regtest")),
		SubmarinePercentage: parseDecimal("BOLTZ_MOCK_SUBMARINE_PERCENTAGE", decimal.NewFromInt(1)),
		SubmarineMinerFee:   parseUint64("BOLTZ_MOCK_SUBMARINE_MINER_FEE", 140),
		ReversePercentage:   parseDecimal("BOLTZ_MOCK_REVERSE_PERCENTAGE", decimal.RequireFromString("0.5")),
		ReverseClaimFee:     parseUint64("BOLTZ_MOCK_REVERSE_CLAIM_FEE", 150),
		ReverseLockupFee:    parseUint64("BOLTZ_MOCK_REVERSE_LOCKUP_FEE", 200),
		MinAmount:           parseUint64("BOLTZ_MOCK_MIN_AMOUNT", 1000),
		MaxAmount:           parseUint64("BOLTZ_MOCK_MAX_AMOUNT", 25_000_000),
		TimeoutBlockHeight:  uint32(parseUint64("BOLTZ_MOCK_TIMEOUT_BLOCK_HEIGHT", 2_500_000)),
	}

	srv, err := mockboltz.New(cfg)
	if err != nil {
		log.Fatalf("failed to create mock boltz: %s", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("failed to start mock boltz: %s", err)
	}
	log.Infof("mock boltz listening on %s", srv.URL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down mock boltz...")
	if err := srv.Stop(); err != nil {
		log.WithError(err).Warn("failed to stop mock boltz gracefully")
	}
	log.Exit(0)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseUint64(key string, fallback uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		log.Warnf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func parseDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Warnf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func parseNetwork(network string) *chaincfg.Params {
	switch strings.ToLower(network) {
	case "bitcoin", "mainnet":
		return &chaincfg.MainNetParams
	case "testnet":
		return &chaincfg.TestNet3Params
	case "signet":
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.RegressionNetParams
	}
}

