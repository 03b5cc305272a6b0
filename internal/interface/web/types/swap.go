package types

type Quote struct {
	Direction      string `json:"direction"`
	Send           int64  `json:"send"`
	Receive        int64  `json:"receive"`
	ServiceFee     int64  `json:"serviceFee"`
	MinerFee       int64  `json:"minerFee"`
	MinSend        int64  `json:"minSend"`
	MaxSend        int64  `json:"maxSend"`
	OutOfRange     bool   `json:"outOfRange"`
	DisplaySend    string `json:"displaySend"`
	DisplayReceive string `json:"displayReceive"`
	DisplayFee     string `json:"displayFee"`
}

type ConfigureSwapRequest struct {
	Direction string `json:"direction" binding:"required"`
	Receive   int64  `json:"receive" binding:"required"`
}

type SubmarineSwapRequest struct {
	Invoice string `json:"invoice" binding:"required"`
}

type ReverseSwapRequest struct {
	Amount  uint64 `json:"amount" binding:"required"`
	Address string `json:"address" binding:"required"`
}

type Swap struct {
	Id             string `json:"id"`
	Direction      string `json:"direction"`
	Status         string `json:"status"`
	Invoice        string `json:"invoice,omitempty"`
	LockupAddress  string `json:"lockupAddress,omitempty"`
	Destination    string `json:"destination,omitempty"`
	ExpectedAmount uint64 `json:"expectedAmount,omitempty"`
	OnchainAmount  uint64 `json:"onchainAmount,omitempty"`
	ClaimTxId      string `json:"claimTxId,omitempty"`
	FailureReason  string `json:"failureReason,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

type Swaps struct {
	Swaps []Swap `json:"swaps"`
}

type Error struct {
	Error string `json:"error"`
	// Bounds of the send amount, set when the amount is out of range.
	MinSend int64 `json:"minSend,omitempty"`
	MaxSend int64 `json:"maxSend,omitempty"`
}
