package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ArkLabsHQ/subswap/internal/core/domain"
	"github.com/ArkLabsHQ/subswap/internal/interface/web/types"
	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/ArkLabsHQ/subswap/pkg/swap"
	"github.com/gin-gonic/gin"
)

func (s *service) getQuote(c *gin.Context) {
	direction, err := swap.ParseDirection(c.DefaultQuery("direction", "forward"))
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}
	send, err := parseAmount(c.Query("send"))
	if err != nil {
		s.abort(c, http.StatusBadRequest, fmt.Errorf("invalid send amount: %w", err))
		return
	}
	receive, err := parseAmount(c.Query("receive"))
	if err != nil {
		s.abort(c, http.StatusBadRequest, fmt.Errorf("invalid receive amount: %w", err))
		return
	}

	estimate, err := s.svc.Estimate(c.Request.Context(), direction, send, receive)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuote(estimate))
}

func (s *service) configureSwap(c *gin.Context) {
	var req types.ConfigureSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}
	direction, err := swap.ParseDirection(req.Direction)
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	estimate, err := s.svc.ConfigureSwap(c.Request.Context(), direction, req.Receive)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuote(estimate))
}

func (s *service) createSubmarineSwap(c *gin.Context) {
	var req types.SubmarineSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	record, err := s.svc.PayInvoice(c.Request.Context(), req.Invoice)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSwap(*record))
}

func (s *service) createReverseSwap(c *gin.Context) {
	var req types.ReverseSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	record, err := s.svc.ReceiveOnchain(c.Request.Context(), req.Amount, req.Address)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSwap(*record))
}

func (s *service) listSwaps(c *gin.Context) {
	records, err := s.svc.ListSwaps(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	swaps := make([]types.Swap, 0, len(records))
	for _, record := range records {
		swaps = append(swaps, toSwap(record))
	}
	c.JSON(http.StatusOK, types.Swaps{Swaps: swaps})
}

func (s *service) getSwap(c *gin.Context) {
	record, err := s.svc.GetSwap(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSwap(*record))
}

func (s *service) health(c *gin.Context) {
	if err := s.svc.CheckService(c.Request.Context()); err != nil {
		s.abort(c, http.StatusServiceUnavailable, err)
		return
	}
	c.String(http.StatusOK, "ok")
}

// fail maps application errors to HTTP statuses.
func (s *service) fail(c *gin.Context, err error) {
	var rangeErr *swap.AmountRangeError
	if errors.As(err, &rangeErr) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, types.Error{
			Error:   err.Error(),
			MinSend: rangeErr.Min,
			MaxSend: rangeErr.Max,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSwapNotFound):
		status = http.StatusNotFound
	case errors.Is(err, swap.ErrInvalidAmount),
		errors.Is(err, swap.ErrOutOfRangeAmount),
		errors.Is(err, swap.ErrInvalidInvoice),
		errors.Is(err, swap.ErrInvalidAddress),
		errors.Is(err, boltz.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, boltz.ErrServiceUnavailable),
		errors.Is(err, swap.ErrChannelClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, swap.ErrLockupMismatch),
		errors.Is(err, swap.ErrInvoiceMismatch),
		errors.Is(err, boltz.ErrProtocol):
		status = http.StatusBadGateway
	}
	s.abort(c, status, err)
}

func (s *service) abort(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, types.Error{Error: err.Error()})
}

func parseAmount(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	amount, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, fmt.Errorf("negative amount")
	}
	return amount, nil
}

func toQuote(e domain.Estimate) types.Quote {
	return types.Quote{
		Direction:      e.Direction.String(),
		Send:           e.Send,
		Receive:        e.Receive,
		ServiceFee:     e.ServiceFee,
		MinerFee:       e.MinerFee,
		MinSend:        e.MinSend,
		MaxSend:        e.MaxSend,
		OutOfRange:     e.OutOfRange,
		DisplaySend:    e.DisplaySend,
		DisplayReceive: e.DisplayReceive,
		DisplayFee:     e.DisplayFee,
	}
}

func toSwap(s domain.Swap) types.Swap {
	return types.Swap{
		Id:             s.Id,
		Direction:      s.Direction.String(),
		Status:         s.Status.String(),
		Invoice:        s.Invoice,
		LockupAddress:  s.LockupAddress,
		Destination:    s.Destination,
		ExpectedAmount: s.ExpectedAmount,
		OnchainAmount:  s.OnchainAmount,
		ClaimTxId:      s.ClaimTxId,
		FailureReason:  s.FailureReason,
		CreatedAt:      s.CreatedAt.Unix(),
		UpdatedAt:      s.UpdatedAt.Unix(),
	}
}
