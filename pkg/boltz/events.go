package boltz

type SwapUpdateEvent int

const (
	UnknownEvent SwapUpdateEvent = iota

	SwapCreated
	SwapExpired

	InvoiceSet
	InvoicePaid
	InvoicePending
	InvoiceSettled
	InvoiceExpired
	InvoiceFailedToPay

	TransactionFailed
	TransactionMempool
	TransactionClaimPending
	TransactionClaimed
	TransactionRefunded
	TransactionConfirmed
	TransactionLockupFailed
)

var swapUpdateEventStrings = map[string]SwapUpdateEvent{
	"swap.created": SwapCreated,
	"swap.expired": SwapExpired,

	"invoice.set":         InvoiceSet,
	"invoice.paid":        InvoicePaid,
	"invoice.pending":     InvoicePending,
	"invoice.settled":     InvoiceSettled,
	"invoice.expired":     InvoiceExpired,
	"invoice.failedToPay": InvoiceFailedToPay,

	"transaction.failed":        TransactionFailed,
	"transaction.mempool":       TransactionMempool,
	"transaction.claim.pending": TransactionClaimPending,
	"transaction.claimed":       TransactionClaimed,
	"transaction.refunded":      TransactionRefunded,
	"transaction.confirmed":     TransactionConfirmed,
	"transaction.lockupFailed":  TransactionLockupFailed,
}

func (event SwapUpdateEvent) String() string {
	for key, value := range swapUpdateEventStrings {
		if event == value {
			return key
		}
	}

	return "unknown"
}

// ParseEvent maps a status string to its event, UnknownEvent if the status is
// not recognized.
func ParseEvent(event string) SwapUpdateEvent {
	return swapUpdateEventStrings[event]
}
