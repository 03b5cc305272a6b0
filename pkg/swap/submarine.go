package swap

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	log "github.com/sirupsen/logrus"
)

// PayInvoice runs a forward swap to completion: the invoice gets paid by the
// service once the expected amount is sent to the lockup address.
func (h *SwapHandler) PayInvoice(
	ctx context.Context, invoice string, callback EventCallback,
) (*Session, error) {
	session, err := h.StartSubmarineSwap(ctx, invoice, callback)
	if err != nil {
		return nil, err
	}

	if _, err := session.Wait(ctx); err != nil {
		return session, err
	}
	return session, nil
}

// StartSubmarineSwap creates a forward swap for the invoice and returns as
// soon as its status channel is open. The session then advances on its own
// until it's claimed, failed or closed.
func (h *SwapHandler) StartSubmarineSwap(
	ctx context.Context, invoice string, callback EventCallback,
) (*Session, error) {
	if len(invoice) <= 0 {
		return nil, fmt.Errorf("%w: missing invoice", ErrInvalidInvoice)
	}

	decoded, err := DecodeInvoice(invoice)
	if err != nil {
		return nil, err
	}

	keys, err := NewKeyMaterial()
	if err != nil {
		return nil, err
	}

	swap, err := h.boltzSvc.CreateSwap(ctx, boltz.CreateSwapRequest{
		From:            boltz.CurrencyBtc,
		To:              boltz.CurrencyBtc,
		Invoice:         invoice,
		RefundPublicKey: keys.PublicKeyHex(),
	})
	if err != nil {
		keys.Zero()
		return nil, fmt.Errorf("failed to create swap: %w", err)
	}

	claimPubkey, err := parsePubkey(swap.ClaimPublicKey)
	if err != nil {
		keys.Zero()
		return nil, fmt.Errorf("%w: %w", boltz.ErrProtocol, err)
	}

	signer, err := NewSigningSession(keys, claimPubkey, swap.SwapTree)
	if err != nil {
		keys.Zero()
		return nil, fmt.Errorf("%w: %w", boltz.ErrProtocol, err)
	}

	lockupAddress, err := signer.LockupAddress(h.config.Network)
	if err != nil {
		keys.Zero()
		return nil, err
	}
	if swap.Address != lockupAddress {
		keys.Zero()
		return nil, fmt.Errorf("%w: got %s, expected %s", ErrLockupMismatch, swap.Address, lockupAddress)
	}

	session := &Session{
		Id:                 swap.Id,
		Direction:          Forward,
		Invoice:            invoice,
		PaymentHash:        decoded.PaymentHash,
		LockupAddress:      swap.Address,
		ExpectedAmount:     swap.ExpectedAmount,
		TimeoutBlockHeight: swap.TimeoutBlockHeight,
		CreatedAt:          time.Now(),
		keys:               keys,
		signer:             signer,
		callback:           callback,
		status:             Created,
	}

	handler := &submarineHandler{boltzSvc: h.boltzSvc, session: session}
	if err := h.start(ctx, session, handler); err != nil {
		return nil, err
	}
	return session, nil
}

type submarineHandler struct {
	boltzSvc *boltz.Api
	session  *Session
}

func (h *submarineHandler) handleUpdate(ctx context.Context, update boltz.SwapUpdate) bool {
	session := h.session

	switch update.Event() {
	case boltz.InvoiceSet:
		if session.Status() == Created {
			session.transition(InvoiceSet, update.Status, "")
		}
	case boltz.TransactionClaimPending:
		h.claim(ctx, update.Status)
	case boltz.TransactionClaimed:
		if status := session.Status(); status != ClaimPending {
			log.WithField("swap", session.Id).Infof("swap claimed by the service from %s", status)
		}
		session.transition(Claimed, update.Status, "")
	case boltz.InvoiceFailedToPay, boltz.TransactionLockupFailed, boltz.SwapExpired:
		session.fail(serviceFailure(update), update.Status)
	case boltz.UnknownEvent:
		log.WithField("swap", session.Id).Debugf("ignoring unknown status %s", update.Status)
	}

	return session.Status().IsTerminal()
}

// claim cooperates with the service to spend the lockup output, once it
// proved the invoice was paid by revealing the preimage.
func (h *submarineHandler) claim(ctx context.Context, serviceStatus string) {
	session := h.session
	logger := log.WithField("swap", session.Id)

	if !session.startClaim() {
		logger.Warn("ignoring duplicate claim request")
		return
	}

	details, err := h.boltzSvc.GetSwapClaimDetails(ctx, session.Id)
	if err != nil {
		session.failOrAbandon(ctx, &ClaimError{SwapId: session.Id, Err: err}, serviceStatus)
		return
	}

	preimage, err := hex.DecodeString(details.Preimage)
	if err != nil {
		session.fail(fmt.Errorf("%w: invalid preimage encoding", ErrPreimageMismatch), serviceStatus)
		return
	}
	if err := validatePreimage(preimage, session.PaymentHash); err != nil {
		logger.Error("service sent a preimage that doesn't match the invoice")
		session.fail(err, serviceStatus)
		return
	}

	theirNonce, err := ParsePubNonce(details.PubNonce)
	if err != nil {
		session.failOrAbandon(ctx, &ClaimError{
			SwapId: session.Id, Err: fmt.Errorf("%w: %w", boltz.ErrProtocol, err),
		}, serviceStatus)
		return
	}
	msg, err := parseTransactionHash(details.TransactionHash)
	if err != nil {
		session.failOrAbandon(ctx, &ClaimError{
			SwapId: session.Id, Err: fmt.Errorf("%w: %w", boltz.ErrProtocol, err),
		}, serviceStatus)
		return
	}

	if err := session.signer.AggregateNonces(theirNonce); err != nil {
		session.failOrAbandon(ctx, &ClaimError{SwapId: session.Id, Err: err}, serviceStatus)
		return
	}
	partialSig, err := session.signer.SignPartial(msg)
	if err != nil {
		session.failOrAbandon(ctx, &ClaimError{SwapId: session.Id, Err: err}, serviceStatus)
		return
	}

	if err := h.boltzSvc.SubmitSwapClaim(ctx, session.Id, partialSig); err != nil {
		session.failOrAbandon(ctx, &ClaimError{SwapId: session.Id, Err: err}, serviceStatus)
		return
	}

	logger.Info("submitted partial signature for cooperative claim")
	session.transition(ClaimPending, serviceStatus, "")
}

func parseTransactionHash(txHash string) ([32]byte, error) {
	b, err := hex.DecodeString(txHash)
	if err != nil {
		return [32]byte{}, fmt.Errorf("decode transaction hash: %w", err)
	}
	if len(b) != 32 {
		return [32]byte{}, fmt.Errorf("invalid transaction hash len: got %d want 32", len(b))
	}
	var msg [32]byte
	copy(msg[:], b)
	return msg, nil
}
