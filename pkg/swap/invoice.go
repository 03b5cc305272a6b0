package swap

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/lntypes"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

type Invoice struct {
	// Amount in sats, zero for amountless invoices.
	Amount      uint64
	PaymentHash lntypes.Hash
	Description string
	ExpiresAt   time.Time
}

func DecodeInvoice(invoice string) (*Invoice, error) {
	bolt11, err := decodepay.Decodepay(invoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInvoice, err)
	}

	paymentHash, err := lntypes.MakeHashFromStr(bolt11.PaymentHash)
	if err != nil {
		return nil, fmt.Errorf("%w: payment hash: %w", ErrInvalidInvoice, err)
	}

	return &Invoice{
		Amount:      uint64(bolt11.MSatoshi / 1000),
		PaymentHash: paymentHash,
		Description: bolt11.Description,
		ExpiresAt:   time.Unix(int64(bolt11.CreatedAt+bolt11.Expiry), 0),
	}, nil
}

func parsePubkey(pubkey string) (*secp256k1.PublicKey, error) {
	dec, err := hex.DecodeString(pubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey: %s", err)
	}

	pk, err := secp256k1.ParsePubKey(dec)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey: %s", err)
	}

	return pk, nil
}
