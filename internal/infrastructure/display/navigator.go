package display

import (
	"context"
	"sync"

	"github.com/ArkLabsHQ/subswap/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

// LogNavigator stands in for a receive screen: it logs the configured swap
// and keeps the last request around for the API to report.
type LogNavigator struct {
	mu   sync.RWMutex
	last *domain.ReceiveRequest
}

func NewLogNavigator() *LogNavigator {
	return &LogNavigator{}
}

func (n *LogNavigator) NavigateToReceive(_ context.Context, request domain.ReceiveRequest) error {
	log.WithFields(log.Fields{
		"direction": request.Direction.String(),
		"send":      request.Send,
		"receive":   request.Receive,
		"fee":       request.Fee,
	}).Infof("swap configured, receive %s", request.Display)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = &request
	return nil
}

func (n *LogNavigator) LastRequest() (domain.ReceiveRequest, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.last == nil {
		return domain.ReceiveRequest{}, false
	}
	return *n.last, true
}
