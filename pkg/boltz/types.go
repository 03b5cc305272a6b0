package boltz

import (
	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyBtc  Currency = "BTC"
	CurrencyLbtc Currency = "L-BTC"
)

type SwapTreeLeaf struct {
	Version uint8  `json:"version"`
	Output  string `json:"output"`
}

type SwapTree struct {
	ClaimLeaf  SwapTreeLeaf `json:"claimLeaf"`
	RefundLeaf SwapTreeLeaf `json:"refundLeaf"`
}

type PairLimits struct {
	Minimal         uint64 `json:"minimal"`
	Maximal         uint64 `json:"maximal"`
	MaximalZeroConf uint64 `json:"maximalZeroConf,omitempty"`
}

type SubmarinePairFees struct {
	Percentage decimal.Decimal `json:"percentage"`
	MinerFees  decimal.Decimal `json:"minerFees"`
}

type SubmarinePair struct {
	Hash   string            `json:"hash"`
	Rate   decimal.Decimal   `json:"rate"`
	Limits PairLimits        `json:"limits"`
	Fees   SubmarinePairFees `json:"fees"`
}

type ReverseMinerFees struct {
	Claim  decimal.Decimal `json:"claim"`
	Lockup decimal.Decimal `json:"lockup"`
}

type ReversePairFees struct {
	Percentage decimal.Decimal  `json:"percentage"`
	MinerFees  ReverseMinerFees `json:"minerFees"`
}

type ReversePair struct {
	Hash   string          `json:"hash"`
	Rate   decimal.Decimal `json:"rate"`
	Limits PairLimits      `json:"limits"`
	Fees   ReversePairFees `json:"fees"`
}

// SubmarinePairs is indexed by from and to currency.
type SubmarinePairs map[Currency]map[Currency]SubmarinePair

// ReversePairs is indexed by from and to currency.
type ReversePairs map[Currency]map[Currency]ReversePair

// SwapFees is only sent by some deployments along with the creation response.
type SwapFees struct {
	Percentage decimal.Decimal `json:"percentage"`
	MinerFees  decimal.Decimal `json:"minerFees"`
}

type CreateSwapRequest struct {
	From            Currency `json:"from"`
	To              Currency `json:"to"`
	Invoice         string   `json:"invoice"`
	RefundPublicKey string   `json:"refundPublicKey"`
	PairHash        string   `json:"pairHash,omitempty"`
}

type CreateSwapResponse struct {
	Id                 string      `json:"id"`
	Address            string      `json:"address"`
	ExpectedAmount     uint64      `json:"expectedAmount"`
	ClaimPublicKey     string      `json:"claimPublicKey"`
	TimeoutBlockHeight uint32      `json:"timeoutBlockHeight"`
	AcceptZeroConf     bool        `json:"acceptZeroConf"`
	SwapTree           SwapTree    `json:"swapTree"`
	Bip21              string      `json:"bip21,omitempty"`
	Fees               *SwapFees   `json:"fees,omitempty"`
	Limits             *PairLimits `json:"limits,omitempty"`

	Error string `json:"error,omitempty"`
}

type CreateReverseSwapRequest struct {
	From           Currency `json:"from"`
	To             Currency `json:"to"`
	PreimageHash   string   `json:"preimageHash"`
	ClaimPublicKey string   `json:"claimPublicKey"`
	InvoiceAmount  uint64   `json:"invoiceAmount,omitempty"`
	OnchainAmount  uint64   `json:"onchainAmount,omitempty"`
	PairHash       string   `json:"pairHash,omitempty"`
}

type CreateReverseSwapResponse struct {
	Id                 string      `json:"id"`
	Invoice            string      `json:"invoice"`
	SwapTree           SwapTree    `json:"swapTree"`
	LockupAddress      string      `json:"lockupAddress"`
	RefundPublicKey    string      `json:"refundPublicKey"`
	TimeoutBlockHeight uint32      `json:"timeoutBlockHeight"`
	OnchainAmount      uint64      `json:"onchainAmount"`
	Fees               *SwapFees   `json:"fees,omitempty"`
	Limits             *PairLimits `json:"limits,omitempty"`

	Error string `json:"error,omitempty"`
}

// SwapClaimDetails is what the service hands out once it has paid the
// invoice of a submarine swap and wants to claim the lockup cooperatively.
type SwapClaimDetails struct {
	Preimage        string `json:"preimage"`
	PubNonce        string `json:"pubNonce"`
	TransactionHash string `json:"transactionHash"`

	Error string `json:"error,omitempty"`
}

type PartialSignature struct {
	PubNonce         string `json:"pubNonce"`
	PartialSignature string `json:"partialSignature"`

	Error string `json:"error,omitempty"`
}

type ReverseClaimRequest struct {
	Index       int    `json:"index"`
	Transaction string `json:"transaction"`
	Preimage    string `json:"preimage"`
	PubNonce    string `json:"pubNonce"`
}

type BroadcastRequest struct {
	Hex string `json:"hex"`
}

type BroadcastResponse struct {
	Id string `json:"id"`

	Error string `json:"error,omitempty"`
}

type SwapStatusResponse struct {
	Status        string              `json:"status"`
	FailureReason string              `json:"failureReason,omitempty"`
	Transaction   *TransactionDetails `json:"transaction,omitempty"`

	Error string `json:"error,omitempty"`
}

type TransactionDetails struct {
	Id  string `json:"id" mapstructure:"id"`
	Hex string `json:"hex" mapstructure:"hex"`
	Eta uint64 `json:"eta,omitempty" mapstructure:"eta"`
}

// SwapUpdate is a single status event pushed on the swap.update channel.
type SwapUpdate struct {
	Id               string              `json:"id" mapstructure:"id"`
	Status           string              `json:"status" mapstructure:"status"`
	FailureReason    string              `json:"failureReason,omitempty" mapstructure:"failureReason"`
	ZeroConfRejected bool                `json:"zeroConfRejected,omitempty" mapstructure:"zeroConfRejected"`
	Transaction      *TransactionDetails `json:"transaction,omitempty" mapstructure:"transaction"`
}

func (u SwapUpdate) Event() SwapUpdateEvent {
	return ParseEvent(u.Status)
}
