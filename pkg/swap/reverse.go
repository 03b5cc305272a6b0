package swap

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

type ReverseSwapRequest struct {
	// InvoiceAmount is the amount in sats of the invoice the user pays.
	InvoiceAmount uint64
	// Address receives the on-chain funds.
	Address string
}

// StartReverseSwap creates a reverse swap. The returned session carries the
// invoice to pay; once the service locks the funds on-chain they're claimed
// cooperatively to the destination address.
func (h *SwapHandler) StartReverseSwap(
	ctx context.Context, request ReverseSwapRequest, callback EventCallback,
) (*Session, error) {
	if request.InvoiceAmount == 0 {
		return nil, fmt.Errorf("%w: missing invoice amount", ErrInvalidAmount)
	}
	if err := validateAddress(request.Address, h.config.Network); err != nil {
		return nil, err
	}

	preimage, err := newPreimage()
	if err != nil {
		return nil, err
	}
	paymentHash := preimage.Hash()

	keys, err := NewKeyMaterial()
	if err != nil {
		return nil, err
	}

	swap, err := h.boltzSvc.CreateReverseSwap(ctx, boltz.CreateReverseSwapRequest{
		From:           boltz.CurrencyBtc,
		To:             boltz.CurrencyBtc,
		PreimageHash:   hex.EncodeToString(paymentHash[:]),
		ClaimPublicKey: keys.PublicKeyHex(),
		InvoiceAmount:  request.InvoiceAmount,
	})
	if err != nil {
		keys.Zero()
		return nil, fmt.Errorf("failed to create reverse swap: %w", err)
	}

	invoice, err := DecodeInvoice(swap.Invoice)
	if err != nil {
		keys.Zero()
		return nil, fmt.Errorf("%w: %w", boltz.ErrProtocol, err)
	}
	if subtle.ConstantTimeCompare(invoice.PaymentHash[:], paymentHash[:]) != 1 {
		keys.Zero()
		return nil, fmt.Errorf("%w: payment hash %s", ErrInvoiceMismatch, invoice.PaymentHash)
	}
	if invoice.Amount != request.InvoiceAmount {
		keys.Zero()
		return nil, fmt.Errorf(
			"%w: amount %d, expected %d", ErrInvoiceMismatch, invoice.Amount, request.InvoiceAmount,
		)
	}

	refundPubkey, err := parsePubkey(swap.RefundPublicKey)
	if err != nil {
		keys.Zero()
		return nil, fmt.Errorf("%w: %w", boltz.ErrProtocol, err)
	}
	signer, err := NewSigningSession(keys, refundPubkey, swap.SwapTree)
	if err != nil {
		keys.Zero()
		return nil, fmt.Errorf("%w: %w", boltz.ErrProtocol, err)
	}
	lockupAddress, err := signer.LockupAddress(h.config.Network)
	if err != nil {
		keys.Zero()
		return nil, err
	}
	if swap.LockupAddress != lockupAddress {
		keys.Zero()
		return nil, fmt.Errorf(
			"%w: got %s, expected %s", ErrLockupMismatch, swap.LockupAddress, lockupAddress,
		)
	}

	session := &Session{
		Id:                 swap.Id,
		Direction:          Reverse,
		Invoice:            swap.Invoice,
		PaymentHash:        paymentHash,
		LockupAddress:      swap.LockupAddress,
		ExpectedAmount:     request.InvoiceAmount,
		OnchainAmount:      swap.OnchainAmount,
		TimeoutBlockHeight: swap.TimeoutBlockHeight,
		CreatedAt:          time.Now(),
		keys:               keys,
		signer:             signer,
		preimage:           preimage,
		destination:        request.Address,
		callback:           callback,
		status:             Created,
	}

	handler := &reverseHandler{
		boltzSvc: h.boltzSvc,
		session:  session,
		network:  h.config.Network,
		feeRate:  h.config.ClaimFeeRate,
	}
	if err := h.start(ctx, session, handler); err != nil {
		return nil, err
	}
	return session, nil
}

type reverseHandler struct {
	boltzSvc *boltz.Api
	session  *Session
	network  *chaincfg.Params
	feeRate  uint64
}

func (h *reverseHandler) handleUpdate(ctx context.Context, update boltz.SwapUpdate) bool {
	session := h.session

	switch update.Event() {
	case boltz.TransactionMempool, boltz.TransactionConfirmed:
		h.claim(ctx, update)
	case boltz.InvoiceSettled, boltz.TransactionClaimed:
		session.transition(Claimed, update.Status, "")
	case boltz.SwapExpired, boltz.TransactionFailed, boltz.TransactionRefunded, boltz.InvoiceExpired:
		session.fail(serviceFailure(update), update.Status)
	case boltz.UnknownEvent:
		log.WithField("swap", session.Id).Debugf("ignoring unknown status %s", update.Status)
	}

	return session.Status().IsTerminal()
}

// claim spends the lockup output to the destination with a key path
// signature aggregated with the service.
func (h *reverseHandler) claim(ctx context.Context, update boltz.SwapUpdate) {
	session := h.session
	logger := log.WithField("swap", session.Id)

	if update.Transaction == nil || update.Transaction.Hex == "" {
		logger.Debugf("no lockup transaction in %s update, waiting", update.Status)
		return
	}
	if !session.startClaim() {
		logger.Debug("claim already attempted")
		return
	}

	fail := func(err error) {
		session.failOrAbandon(ctx, &ClaimError{SwapId: session.Id, Err: err}, update.Status)
	}

	lockupTx, err := deserializeTransaction(update.Transaction.Hex)
	if err != nil {
		fail(fmt.Errorf("%w: lockup transaction: %w", boltz.ErrProtocol, err))
		return
	}
	lockupScript, err := session.signer.LockupScript()
	if err != nil {
		fail(err)
		return
	}
	vout, amount, err := findOutputForScript(lockupTx, lockupScript)
	if err != nil {
		fail(err)
		return
	}

	outpoint := wire.OutPoint{Hash: lockupTx.TxHash(), Index: vout}
	claimTx, err := buildClaimTx(claimTxParams{
		LockupOutpoint:  outpoint,
		LockupAmount:    amount,
		DestinationAddr: session.destination,
		FeeRate:         h.feeRate,
		Network:         h.network,
	})
	if err != nil {
		fail(err)
		return
	}

	prevOut := lockupTx.TxOut[vout]
	msg, err := TaprootMessage(claimTx, 0, newPrevOutputFetcher(prevOut, outpoint))
	if err != nil {
		fail(err)
		return
	}

	unsignedTx, err := serializeTransaction(claimTx)
	if err != nil {
		fail(err)
		return
	}
	theirSig, err := h.boltzSvc.ClaimReverseSwap(ctx, session.Id, boltz.ReverseClaimRequest{
		Index:       0,
		Transaction: unsignedTx,
		Preimage:    hex.EncodeToString(session.preimage[:]),
		PubNonce:    SerializePubNonce(session.signer.PublicNonce()),
	})
	if err != nil {
		fail(err)
		return
	}

	theirNonce, err := ParsePubNonce(theirSig.PubNonce)
	if err != nil {
		fail(fmt.Errorf("%w: %w", boltz.ErrProtocol, err))
		return
	}
	if err := session.signer.AggregateNonces(theirNonce); err != nil {
		fail(err)
		return
	}
	if _, err := session.signer.SignPartial(msg); err != nil {
		fail(err)
		return
	}
	sig, err := session.signer.CombinePartial(theirSig.PartialSignature)
	if err != nil {
		fail(err)
		return
	}

	claimTx.TxIn[0].Witness = wire.TxWitness{sig.Serialize()}
	signedTx, err := serializeTransaction(claimTx)
	if err != nil {
		fail(err)
		return
	}
	txid, err := h.boltzSvc.BroadcastTransaction(ctx, boltz.CurrencyBtc, signedTx)
	if err != nil {
		fail(err)
		return
	}

	logger.Infof("broadcasted claim transaction %s", txid)
	session.transition(ClaimPending, update.Status, txid)
}

func validateAddress(address string, network *chaincfg.Params) error {
	if address == "" {
		return fmt.Errorf("%w: missing address", ErrInvalidAddress)
	}
	addr, err := btcutil.DecodeAddress(address, network)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if !addr.IsForNet(network) {
		return fmt.Errorf("%w: not for %s", ErrInvalidAddress, network.Name)
	}
	if _, err := payToAddrScript(addr); err != nil {
		return err
	}
	return nil
}
