package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/subswap/internal/core/domain"
	"github.com/ArkLabsHQ/subswap/internal/core/ports"
	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/ArkLabsHQ/subswap/pkg/swap"
	"github.com/ccoveille/go-safecast"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrMissingPair = errors.New("swap pair not offered by the service")

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type Service struct {
	BuildInfo BuildInfo

	boltzSvc    *boltz.Api
	swapHandler *swap.SwapHandler
	repoManager ports.RepoManager
	units       ports.UnitProvider
	navigator   ports.Navigator
	swapTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	quoteMu   sync.Mutex
	direction swap.Direction
	quotes    map[swap.Direction]domain.Quote

	sessionMu sync.Mutex
	sessions  map[string]*swap.Session
	recordMu  sync.Mutex
	wg        sync.WaitGroup
}

func NewService(
	buildInfo BuildInfo,
	boltzSvc *boltz.Api,
	swapHandler *swap.SwapHandler,
	repoManager ports.RepoManager,
	units ports.UnitProvider,
	navigator ports.Navigator,
	swapTimeout time.Duration,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		BuildInfo:   buildInfo,
		boltzSvc:    boltzSvc,
		swapHandler: swapHandler,
		repoManager: repoManager,
		units:       units,
		navigator:   navigator,
		swapTimeout: swapTimeout,
		ctx:         ctx,
		cancel:      cancel,
		quotes:      make(map[swap.Direction]domain.Quote),
		sessions:    make(map[string]*swap.Session),
	}
}

// Stop abandons the running swaps and closes the repositories.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	s.repoManager.Close()
	log.Info("swap service stopped")
}

// GetQuote returns the fee schedule and limits for direction, fetched once
// and cached until the direction changes or ResetQuotes is called.
func (s *Service) GetQuote(ctx context.Context, direction swap.Direction) (domain.Quote, error) {
	s.quoteMu.Lock()
	defer s.quoteMu.Unlock()

	if s.direction != direction {
		log.Debugf("direction switched to %s, dropping cached quotes", direction)
		s.quotes = make(map[swap.Direction]domain.Quote)
		s.direction = direction
	}
	if quote, ok := s.quotes[direction]; ok {
		return quote, nil
	}

	quote, err := s.fetchQuote(ctx, direction)
	if err != nil {
		return domain.Quote{}, err
	}
	s.quotes[direction] = quote
	return quote, nil
}

func (s *Service) ResetQuotes() {
	s.quoteMu.Lock()
	defer s.quoteMu.Unlock()
	s.quotes = make(map[swap.Direction]domain.Quote)
}

// Estimate applies the quote of direction to either a send or a receive
// amount. When receive is set, send is derived from it and receive is kept
// as requested.
func (s *Service) Estimate(
	ctx context.Context, direction swap.Direction, send, receive int64,
) (domain.Estimate, error) {
	if send < 0 || receive < 0 {
		return domain.Estimate{}, fmt.Errorf("%w: amounts must not be negative", swap.ErrInvalidAmount)
	}
	if err := validateDirection(direction); err != nil {
		return domain.Estimate{}, err
	}

	quote, err := s.GetQuote(ctx, direction)
	if err != nil {
		return domain.Estimate{}, err
	}
	calc := quote.Calculator()

	if receive > 0 {
		send = calc.SendAmount(receive)
	} else {
		receive = calc.ReceiveAmount(send)
	}
	if err := calc.ValidateReceive(receive); err != nil {
		return domain.Estimate{}, err
	}

	minSend, maxSend := calc.SendLimits(quote.Limits)
	fee := calc.ServiceFee(send)
	estimate := domain.Estimate{
		Direction:  direction,
		Send:       send,
		Receive:    receive,
		ServiceFee: fee,
		MinerFee:   quote.Fees.MinerFee.Ceil().IntPart(),
		MinSend:    minSend,
		MaxSend:    maxSend,
		OutOfRange: calc.ValidateSend(send, quote.Limits) != nil,
	}
	estimate.DisplaySend = s.formatAmount(ctx, send)
	estimate.DisplayReceive = s.formatAmount(ctx, receive)
	estimate.DisplayFee = s.formatAmount(ctx, fee+estimate.MinerFee)
	return estimate, nil
}

// ConfigureSwap validates a receive amount for direction and hands the
// resulting swap to the navigator.
func (s *Service) ConfigureSwap(
	ctx context.Context, direction swap.Direction, receive int64,
) (domain.Estimate, error) {
	if receive <= 0 {
		return domain.Estimate{}, fmt.Errorf("%w: missing receive amount", swap.ErrInvalidAmount)
	}

	estimate, err := s.Estimate(ctx, direction, 0, receive)
	if err != nil {
		return domain.Estimate{}, err
	}
	if estimate.OutOfRange {
		return estimate, &swap.AmountRangeError{
			Amount: estimate.Send, Min: estimate.MinSend, Max: estimate.MaxSend,
		}
	}

	if err := s.navigator.NavigateToReceive(ctx, domain.ReceiveRequest{
		Direction: direction,
		Send:      estimate.Send,
		Receive:   estimate.Receive,
		Fee:       estimate.ServiceFee + estimate.MinerFee,
		Display:   estimate.DisplayReceive,
	}); err != nil {
		return domain.Estimate{}, fmt.Errorf("failed to navigate to receive: %w", err)
	}
	return estimate, nil
}

// PayInvoice starts a forward swap paying invoice. It returns once the swap
// is created, the swap then proceeds in background.
func (s *Service) PayInvoice(ctx context.Context, invoice string) (*domain.Swap, error) {
	decoded, err := swap.DecodeInvoice(invoice)
	if err != nil {
		return nil, err
	}
	if decoded.Amount == 0 {
		return nil, fmt.Errorf("%w: amountless invoices are not supported", swap.ErrInvalidAmount)
	}
	amount, err := safecast.ToInt64(decoded.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrInvalidAmount, err)
	}

	quote, err := s.GetQuote(ctx, swap.Forward)
	if err != nil {
		return nil, err
	}
	calc := quote.Calculator()
	if err := calc.ValidateSend(calc.SendAmount(amount), quote.Limits); err != nil {
		return nil, err
	}

	sessionCtx, cancel := s.sessionContext()
	session, err := s.swapHandler.StartSubmarineSwap(sessionCtx, invoice, s.onSwapEvent)
	if err != nil {
		cancel()
		return nil, err
	}

	record := domain.Swap{
		Id:             session.Id,
		Direction:      swap.Forward,
		Status:         session.Status(),
		Invoice:        invoice,
		LockupAddress:  session.LockupAddress,
		ExpectedAmount: session.ExpectedAmount,
		CreatedAt:      session.CreatedAt,
		UpdatedAt:      time.Now(),
	}
	if err := s.track(ctx, session, record, cancel); err != nil {
		return nil, err
	}

	log.WithField("swap", session.Id).Infof(
		"created forward swap, send %d sats to %s", session.ExpectedAmount, session.LockupAddress,
	)
	return s.GetSwap(ctx, session.Id)
}

// ReceiveOnchain starts a reverse swap: once the returned invoice is paid,
// amount minus fees is claimed to address.
func (s *Service) ReceiveOnchain(ctx context.Context, amount uint64, address string) (*domain.Swap, error) {
	send, err := safecast.ToInt64(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrInvalidAmount, err)
	}

	quote, err := s.GetQuote(ctx, swap.Reverse)
	if err != nil {
		return nil, err
	}
	if err := quote.Calculator().ValidateSend(send, quote.Limits); err != nil {
		return nil, err
	}

	sessionCtx, cancel := s.sessionContext()
	session, err := s.swapHandler.StartReverseSwap(sessionCtx, swap.ReverseSwapRequest{
		InvoiceAmount: amount,
		Address:       address,
	}, s.onSwapEvent)
	if err != nil {
		cancel()
		return nil, err
	}

	record := domain.Swap{
		Id:             session.Id,
		Direction:      swap.Reverse,
		Status:         session.Status(),
		Invoice:        session.Invoice,
		LockupAddress:  session.LockupAddress,
		Destination:    address,
		ExpectedAmount: session.ExpectedAmount,
		OnchainAmount:  session.OnchainAmount,
		CreatedAt:      session.CreatedAt,
		UpdatedAt:      time.Now(),
	}
	if err := s.track(ctx, session, record, cancel); err != nil {
		return nil, err
	}

	log.WithField("swap", session.Id).Infof(
		"created reverse swap, pay invoice to receive %d sats on-chain", session.OnchainAmount,
	)
	return s.GetSwap(ctx, session.Id)
}

// CheckService reports whether the swap service answers.
func (s *Service) CheckService(ctx context.Context) error {
	if _, err := s.boltzSvc.GetSubmarinePairs(ctx); err != nil {
		return fmt.Errorf("swap service unreachable: %w", err)
	}
	return nil
}

func (s *Service) ListSwaps(ctx context.Context) ([]domain.Swap, error) {
	return s.repoManager.Swap().GetAll(ctx)
}

func (s *Service) GetSwap(ctx context.Context, id string) (*domain.Swap, error) {
	return s.repoManager.Swap().Get(ctx, id)
}

func (s *Service) fetchQuote(ctx context.Context, direction swap.Direction) (domain.Quote, error) {
	var (
		percentage, minerFee decimal.Decimal
		limits               boltz.PairLimits
		hash                 string
	)

	switch direction {
	case swap.Forward:
		pairs, err := s.boltzSvc.GetSubmarinePairs(ctx)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("failed to fetch submarine pairs: %w", err)
		}
		pair, ok := pairs[boltz.CurrencyBtc][boltz.CurrencyBtc]
		if !ok {
			return domain.Quote{}, fmt.Errorf("%w: %s/%s", ErrMissingPair, boltz.CurrencyBtc, boltz.CurrencyBtc)
		}
		percentage, minerFee = pair.Fees.Percentage, pair.Fees.MinerFees
		limits, hash = pair.Limits, pair.Hash
	case swap.Reverse:
		pairs, err := s.boltzSvc.GetReversePairs(ctx)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("failed to fetch reverse pairs: %w", err)
		}
		pair, ok := pairs[boltz.CurrencyBtc][boltz.CurrencyBtc]
		if !ok {
			return domain.Quote{}, fmt.Errorf("%w: %s/%s", ErrMissingPair, boltz.CurrencyBtc, boltz.CurrencyBtc)
		}
		percentage = pair.Fees.Percentage
		minerFee = pair.Fees.MinerFees.Claim.Add(pair.Fees.MinerFees.Lockup)
		limits, hash = pair.Limits, pair.Hash
	default:
		return domain.Quote{}, validateDirection(direction)
	}

	fees, err := swap.NewFeeSchedule(percentage, minerFee)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %w", boltz.ErrProtocol, err)
	}

	log.Debugf("fetched %s quote: %s%% + %s sats", direction, percentage, minerFee)
	return domain.Quote{
		Direction: direction,
		Fees:      fees,
		Limits:    swap.SwapLimits{Minimal: limits.Minimal, Maximal: limits.Maximal},
		PairHash:  hash,
		FetchedAt: time.Now(),
	}, nil
}

func (s *Service) sessionContext() (context.Context, context.CancelFunc) {
	if s.swapTimeout > 0 {
		return context.WithTimeout(s.ctx, s.swapTimeout)
	}
	return context.WithCancel(s.ctx)
}

// track persists a new swap and keeps its record in sync with the session
// until the session stops.
func (s *Service) track(
	ctx context.Context, session *swap.Session, record domain.Swap, cancel context.CancelFunc,
) error {
	s.sessionMu.Lock()
	s.sessions[session.Id] = session
	s.sessionMu.Unlock()

	if err := s.repoManager.Swap().Add(ctx, record); err != nil {
		session.Close()
		cancel()
		s.untrack(session.Id)
		return fmt.Errorf("failed to store swap %s: %w", session.Id, err)
	}
	// events emitted before the record was stored
	s.syncRecord(session)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-session.Done()
		cancel()
		s.syncRecord(session)
		s.untrack(session.Id)
	}()
	return nil
}

func (s *Service) untrack(id string) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	delete(s.sessions, id)
}

func (s *Service) onSwapEvent(event swap.SwapEvent) {
	s.sessionMu.Lock()
	session, ok := s.sessions[event.SwapId]
	s.sessionMu.Unlock()
	if !ok {
		return
	}
	s.syncRecord(session)
}

func (s *Service) syncRecord(session *swap.Session) {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	ctx := context.Background()
	logger := log.WithField("swap", session.Id)

	record, err := s.repoManager.Swap().Get(ctx, session.Id)
	if err != nil {
		logger.WithError(err).Debug("swap record not stored yet")
		return
	}

	status, claimTxId, sessionErr := session.Status(), session.ClaimTxId(), session.Err()
	failureReason := record.FailureReason
	if sessionErr != nil {
		failureReason = sessionErr.Error()
	}
	if record.Status == status && record.ClaimTxId == claimTxId && record.FailureReason == failureReason {
		return
	}

	record.Status = status
	record.ClaimTxId = claimTxId
	record.FailureReason = failureReason
	record.UpdatedAt = time.Now()
	if err := s.repoManager.Swap().Update(ctx, *record); err != nil {
		logger.WithError(err).Warn("failed to update swap record")
	}
}

func (s *Service) formatAmount(ctx context.Context, sats int64) string {
	unit := s.units.Unit()

	var rate decimal.Decimal
	if unit == domain.UnitFiat {
		var err error
		if rate, err = s.units.FiatRate(ctx); err != nil {
			log.WithError(err).Warn("failed to get fiat rate, showing sats")
			unit = domain.UnitSat
		}
	}
	return domain.FormatAmount(sats, unit, rate, s.units.FiatCurrency())
}

func validateDirection(direction swap.Direction) error {
	if direction != swap.Forward && direction != swap.Reverse {
		return fmt.Errorf("invalid swap direction %d", direction)
	}
	return nil
}
