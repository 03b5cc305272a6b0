// Package mockboltz is an in-process fake of the swap service REST and
// websocket API. It holds real keys and produces real MuSig2 partial
// signatures, so cooperative claims can be verified end to end.
package mockboltz

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/input"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	kindSubmarine = "submarine"
	kindReverse   = "reverse"
)

type Config struct {
	ListenAddr string
	Network    *chaincfg.Params

	SubmarinePercentage decimal.Decimal
	SubmarineMinerFee   uint64
	ReversePercentage   decimal.Decimal
	ReverseClaimFee     uint64
	ReverseLockupFee    uint64
	MinAmount           uint64
	MaxAmount           uint64
	TimeoutBlockHeight  uint32
}

// Behavior toggles the misbehaviors tests can ask for.
type Behavior struct {
	FailClaims      bool `json:"failClaims"`
	WrongPreimage   bool `json:"wrongPreimage"`
	TamperLockup    bool `json:"tamperLockup"`
	TamperInvoice   bool `json:"tamperInvoice"`
	RejectWebsocket bool `json:"rejectWebsocket"`
}

type swapState struct {
	ID             string
	Kind           string
	PaymentHash    [32]byte
	Preimage       []byte
	ClientPubKey   *btcec.PublicKey
	SwapTree       boltz.SwapTree
	MerkleRoot     []byte
	OutputKey      *btcec.PublicKey
	LockupScript   []byte
	LockupAddress  string
	ExpectedAmount uint64
	OnchainAmount  uint64
	LastStatus     string
	LastTx         *boltz.TransactionDetails

	// submarine cooperative claim
	ServerNonces  *musig2.Nonces
	ClaimMsg      [32]byte
	ClaimRequests int
	ClaimVerified bool

	// reverse cooperative claim
	LockupTx    *wire.MsgTx
	BroadcastTx *wire.MsgTx
}

type wsClient struct {
	subs map[string]struct{}
	mu   sync.Mutex
}

type Server struct {
	cfg Config

	privateKey *btcec.PrivateKey
	publicKey  *btcec.PublicKey
	nodeKey    *btcec.PrivateKey

	mu        sync.RWMutex
	swaps     map[string]*swapState
	preimages map[[32]byte][]byte
	behavior  Behavior

	pairRequests atomic.Int64

	wsMu      sync.RWMutex
	wsClients map[*websocket.Conn]*wsClient
	upgrader  websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
}

func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.Network == nil {
		cfg.Network = &chaincfg.TestNet3Params
	}
	if cfg.SubmarinePercentage.IsZero() {
		cfg.SubmarinePercentage = decimal.NewFromInt(1)
	}
	if cfg.SubmarineMinerFee == 0 {
		cfg.SubmarineMinerFee = 140
	}
	if cfg.ReversePercentage.IsZero() {
		cfg.ReversePercentage = decimal.RequireFromString("0.5")
	}
	if cfg.ReverseClaimFee == 0 {
		cfg.ReverseClaimFee = 150
	}
	if cfg.ReverseLockupFee == 0 {
		cfg.ReverseLockupFee = 200
	}
	if cfg.MinAmount == 0 {
		cfg.MinAmount = 1000
	}
	if cfg.MaxAmount == 0 {
		cfg.MaxAmount = 25_000_000
	}
	if cfg.TimeoutBlockHeight == 0 {
		cfg.TimeoutBlockHeight = 2_500_000
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("new server private key: %w", err)
	}
	nodeKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("new node key: %w", err)
	}

	return &Server{
		cfg:        cfg,
		privateKey: priv,
		publicKey:  priv.PubKey(),
		nodeKey:    nodeKey,
		swaps:      make(map[string]*swapState),
		preimages:  make(map[[32]byte][]byte),
		wsClients:  make(map[*websocket.Conn]*wsClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v2/ws", s.handleWS)
	mux.HandleFunc("/v2/swap/submarine", s.handleSubmarineRoot)
	mux.HandleFunc("/v2/swap/submarine/", s.handleSubmarineSubroutes)
	mux.HandleFunc("/v2/swap/reverse", s.handleReverseRoot)
	mux.HandleFunc("/v2/swap/reverse/", s.handleReverseSubroutes)
	mux.HandleFunc("/v2/swap/", s.handleSwapStatus)
	mux.HandleFunc("/v2/chain/BTC/transaction", s.handleBroadcast)
	mux.HandleFunc("/admin/behavior", s.handleAdminBehavior)
	mux.HandleFunc("/admin/swaps/", s.handleAdminSwap)
	return mux
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("mock boltz server stopped unexpectedly")
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	s.DropConnections()

	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// URL is the base url to hand to boltz.Api once the server is started.
func (s *Server) URL() string {
	return "http://" + s.listener.Addr().String()
}

func (s *Server) Network() *chaincfg.Params {
	return s.cfg.Network
}

func (s *Server) SetBehavior(b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behavior = b
}

func (s *Server) getBehavior() Behavior {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.behavior
}

// NewInvoice returns an invoice for amount sats whose preimage the server
// learns when it "pays" it.
func (s *Server) NewInvoice(amount uint64) (string, []byte, error) {
	preimage := make([]byte, 32)
	if _, err := rand.Read(preimage); err != nil {
		return "", nil, err
	}
	paymentHash := sha256.Sum256(preimage)

	invoice, err := EncodeInvoice(s.cfg.Network, s.nodeKey, paymentHash, amount)
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	s.preimages[paymentHash] = preimage
	s.mu.Unlock()

	return invoice, preimage, nil
}

// ClaimRequests is how many partial signatures were submitted for a
// submarine swap.
func (s *Server) ClaimRequests(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.swaps[id]; ok {
		return st.ClaimRequests
	}
	return 0
}

// ClaimVerified reports whether the aggregated claim signature of a
// submarine swap was valid for the lockup output key.
func (s *Server) ClaimVerified(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.swaps[id]; ok {
		return st.ClaimVerified
	}
	return false
}

// BroadcastTx is the reverse swap claim transaction broadcasted by the
// client, if any.
func (s *Server) BroadcastTx(id string) *wire.MsgTx {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.swaps[id]; ok {
		return st.BroadcastTx
	}
	return nil
}

// PairRequests is how many times the pairs were fetched.
func (s *Server) PairRequests() int64 {
	return s.pairRequests.Load()
}

// SwapIds lists the ids of all the swaps created so far.
func (s *Server) SwapIds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.swaps))
	for id := range s.swaps {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmarineRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.pairRequests.Add(1)
		writeJSON(w, http.StatusOK, boltz.SubmarinePairs{
			boltz.CurrencyBtc: {
				boltz.CurrencyBtc: {
					Hash:   "submarine-pair",
					Rate:   decimal.NewFromInt(1),
					Limits: boltz.PairLimits{Minimal: s.cfg.MinAmount, Maximal: s.cfg.MaxAmount},
					Fees: boltz.SubmarinePairFees{
						Percentage: s.cfg.SubmarinePercentage,
						MinerFees:  decimal.NewFromUint64(s.cfg.SubmarineMinerFee),
					},
				},
			},
		})
	case http.MethodPost:
		var req boltz.CreateSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		resp, err := s.createSubmarineSwap(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSubmarineSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	// v2 swap submarine {id} claim
	if len(parts) != 5 || parts[4] != "claim" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[3]

	switch r.Method {
	case http.MethodGet:
		s.handleGetClaimDetails(w, id)
	case http.MethodPost:
		s.handleSubmitClaim(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleReverseRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.pairRequests.Add(1)
		writeJSON(w, http.StatusOK, boltz.ReversePairs{
			boltz.CurrencyBtc: {
				boltz.CurrencyBtc: {
					Hash:   "reverse-pair",
					Rate:   decimal.NewFromInt(1),
					Limits: boltz.PairLimits{Minimal: s.cfg.MinAmount, Maximal: s.cfg.MaxAmount},
					Fees: boltz.ReversePairFees{
						Percentage: s.cfg.ReversePercentage,
						MinerFees: boltz.ReverseMinerFees{
							Claim:  decimal.NewFromUint64(s.cfg.ReverseClaimFee),
							Lockup: decimal.NewFromUint64(s.cfg.ReverseLockupFee),
						},
					},
				},
			},
		})
	case http.MethodPost:
		var req boltz.CreateReverseSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		resp, err := s.createReverseSwap(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleReverseSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) != 5 || parts[4] != "claim" || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.handleReverseClaim(w, r, parts[3])
}

func (s *Server) handleSwapStatus(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) != 3 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	st, ok := s.getSwap(parts[2])
	if !ok {
		writeError(w, http.StatusNotFound, "swap not found")
		return
	}
	writeJSON(w, http.StatusOK, boltz.SwapStatusResponse{Status: st.LastStatus})
}

func (s *Server) createSubmarineSwap(req boltz.CreateSwapRequest) (*boltz.CreateSwapResponse, error) {
	clientKey, err := parsePubKey(req.RefundPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid refundPublicKey: %w", err)
	}
	invoice, err := decodeInvoice(req.Invoice, s.cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice: %w", err)
	}
	amount := uint64(invoice.MilliSat.ToSatoshis())
	if amount < s.cfg.MinAmount || amount > s.cfg.MaxAmount {
		return nil, fmt.Errorf("amount %d out of limits", amount)
	}

	tree, err := buildSwapTree(
		input.Ripemd160H(invoice.PaymentHash[:]), xOnly(s.publicKey), xOnly(clientKey),
		s.cfg.TimeoutBlockHeight,
	)
	if err != nil {
		return nil, err
	}
	st := &swapState{
		ID:           randomID(),
		Kind:         kindSubmarine,
		PaymentHash:  *invoice.PaymentHash,
		ClientPubKey: clientKey,
		SwapTree:     tree,
		LastStatus:   "invoice.set",
	}
	if err := s.buildLockup(st); err != nil {
		return nil, err
	}

	fees := s.cfg.SubmarinePercentage.Mul(decimal.NewFromUint64(amount)).
		Div(decimal.NewFromInt(100)).Ceil()
	st.ExpectedAmount = amount + uint64(fees.IntPart()) + s.cfg.SubmarineMinerFee

	address := st.LockupAddress
	if s.getBehavior().TamperLockup {
		address, err = randomTaprootAddress(s.cfg.Network)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.swaps[st.ID] = st
	s.mu.Unlock()

	return &boltz.CreateSwapResponse{
		Id:                 st.ID,
		Address:            address,
		ExpectedAmount:     st.ExpectedAmount,
		ClaimPublicKey:     hex.EncodeToString(s.publicKey.SerializeCompressed()),
		TimeoutBlockHeight: s.cfg.TimeoutBlockHeight,
		SwapTree:           tree,
	}, nil
}

func (s *Server) createReverseSwap(req boltz.CreateReverseSwapRequest) (*boltz.CreateReverseSwapResponse, error) {
	clientKey, err := parsePubKey(req.ClaimPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid claimPublicKey: %w", err)
	}
	hashBytes, err := hex.DecodeString(req.PreimageHash)
	if err != nil || len(hashBytes) != 32 {
		return nil, fmt.Errorf("invalid preimageHash")
	}
	if req.InvoiceAmount < s.cfg.MinAmount || req.InvoiceAmount > s.cfg.MaxAmount {
		return nil, fmt.Errorf("amount %d out of limits", req.InvoiceAmount)
	}

	var paymentHash [32]byte
	copy(paymentHash[:], hashBytes)

	tree, err := buildSwapTree(
		input.Ripemd160H(paymentHash[:]), xOnly(clientKey), xOnly(s.publicKey),
		s.cfg.TimeoutBlockHeight,
	)
	if err != nil {
		return nil, err
	}

	st := &swapState{
		ID:             randomID(),
		Kind:           kindReverse,
		PaymentHash:    paymentHash,
		ClientPubKey:   clientKey,
		SwapTree:       tree,
		ExpectedAmount: req.InvoiceAmount,
		LastStatus:     "swap.created",
	}
	if err := s.buildLockup(st); err != nil {
		return nil, err
	}

	fee := s.cfg.ReversePercentage.Mul(decimal.NewFromUint64(req.InvoiceAmount)).
		Div(decimal.NewFromInt(100)).Ceil()
	st.OnchainAmount = req.InvoiceAmount - uint64(fee.IntPart()) -
		s.cfg.ReverseClaimFee - s.cfg.ReverseLockupFee

	invoiceHash := paymentHash
	if s.getBehavior().TamperInvoice {
		invoiceHash = sha256.Sum256(paymentHash[:])
	}
	invoice, err := EncodeInvoice(s.cfg.Network, s.nodeKey, invoiceHash, req.InvoiceAmount)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.swaps[st.ID] = st
	s.mu.Unlock()

	return &boltz.CreateReverseSwapResponse{
		Id:                 st.ID,
		Invoice:            invoice,
		SwapTree:           tree,
		LockupAddress:      st.LockupAddress,
		RefundPublicKey:    hex.EncodeToString(s.publicKey.SerializeCompressed()),
		TimeoutBlockHeight: s.cfg.TimeoutBlockHeight,
		OnchainAmount:      st.OnchainAmount,
	}, nil
}

// buildLockup derives the lockup output of a swap. The signer set is
// [server, client], as the client expects the service key first.
func (s *Server) buildLockup(st *swapState) error {
	merkleRoot, err := swapTreeMerkleRoot(st.SwapTree)
	if err != nil {
		return err
	}

	agg, _, _, err := musig2.AggregateKeys([]*btcec.PublicKey{s.publicKey, st.ClientPubKey}, false)
	if err != nil {
		return fmt.Errorf("aggregate keys: %w", err)
	}

	tweaked := txscript.ComputeTaprootOutputKey(agg.FinalKey, merkleRoot)
	pkScript, err := txscript.PayToTaprootScript(tweaked)
	if err != nil {
		return fmt.Errorf("build p2tr script: %w", err)
	}
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(tweaked), s.cfg.Network)
	if err != nil {
		return fmt.Errorf("encode p2tr address: %w", err)
	}

	st.MerkleRoot = merkleRoot
	st.OutputKey = tweaked
	st.LockupScript = pkScript
	st.LockupAddress = addr.EncodeAddress()
	return nil
}

func (s *Server) handleGetClaimDetails(w http.ResponseWriter, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.swaps[id]
	if !ok || st.Kind != kindSubmarine {
		writeError(w, http.StatusNotFound, "swap not found")
		return
	}
	preimage, ok := s.preimages[st.PaymentHash]
	if !ok {
		writeError(w, http.StatusBadRequest, "invoice not paid")
		return
	}
	if s.behavior.WrongPreimage {
		preimage = make([]byte, 32)
		_, _ = rand.Read(preimage)
	}

	if st.ServerNonces == nil {
		nonces, err := musig2.GenNonces(musig2.WithPublicKey(s.publicKey))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		st.ServerNonces = nonces
		_, _ = rand.Read(st.ClaimMsg[:])
	}

	writeJSON(w, http.StatusOK, boltz.SwapClaimDetails{
		Preimage:        hex.EncodeToString(preimage),
		PubNonce:        hex.EncodeToString(st.ServerNonces.PubNonce[:]),
		TransactionHash: hex.EncodeToString(st.ClaimMsg[:]),
	})
}

func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request, id string) {
	var req boltz.PartialSignature
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.swaps[id]
	if !ok || st.Kind != kindSubmarine {
		writeError(w, http.StatusNotFound, "swap not found")
		return
	}
	st.ClaimRequests++

	if s.behavior.FailClaims {
		writeError(w, http.StatusInternalServerError, "cooperative claim disabled by mock config")
		return
	}
	if st.ServerNonces == nil {
		writeError(w, http.StatusBadRequest, "claim details not requested")
		return
	}

	clientNonce, err := parsePubNonce(req.PubNonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid pubNonce: %s", err))
		return
	}
	clientPartial, err := parsePartialSig(req.PartialSignature)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid partialSignature: %s", err))
		return
	}

	sig, err := s.combine(st, st.ServerNonces, clientNonce, clientPartial, st.ClaimMsg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !sig.Verify(st.ClaimMsg[:], st.OutputKey) {
		writeError(w, http.StatusBadRequest, "invalid partial signature")
		return
	}

	st.ClaimVerified = true
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

// combine signs msg with the server nonce and merges the client partial
// signature into the final key spend signature.
func (s *Server) combine(
	st *swapState, serverNonces *musig2.Nonces, clientNonce [66]byte,
	clientPartial *musig2.PartialSignature, msg [32]byte,
) (*schnorr.Signature, error) {
	serverPartial, err := s.sign(st, serverNonces, clientNonce, msg)
	if err != nil {
		return nil, err
	}

	signers := []*btcec.PublicKey{s.publicKey, st.ClientPubKey}
	return musig2.CombineSigs(
		serverPartial.R,
		[]*musig2.PartialSignature{serverPartial, clientPartial},
		musig2.WithTaprootTweakedCombine(msg, signers, st.MerkleRoot, false),
	), nil
}

func (s *Server) sign(
	st *swapState, serverNonces *musig2.Nonces, clientNonce [66]byte, msg [32]byte,
) (*musig2.PartialSignature, error) {
	combinedNonce, err := musig2.AggregateNonces([][66]byte{clientNonce, serverNonces.PubNonce})
	if err != nil {
		return nil, fmt.Errorf("aggregate nonces: %w", err)
	}

	partial, err := musig2.Sign(
		serverNonces.SecNonce,
		s.privateKey,
		combinedNonce,
		[]*btcec.PublicKey{s.publicKey, st.ClientPubKey},
		msg,
		musig2.WithTaprootSignTweak(st.MerkleRoot),
		musig2.WithFastSign(),
	)
	if err != nil {
		return nil, fmt.Errorf("musig sign: %w", err)
	}
	return partial, nil
}

// LockupReverse funds the lockup output of a reverse swap and pushes the
// transaction.mempool update carrying the lockup transaction.
func (s *Server) LockupReverse(id string) (*wire.MsgTx, error) {
	s.mu.Lock()
	st, ok := s.swaps[id]
	if !ok || st.Kind != kindReverse {
		s.mu.Unlock()
		return nil, fmt.Errorf("reverse swap %s not found", id)
	}

	tx := wire.NewMsgTx(2)
	var prevHash chainhash.Hash
	_, _ = rand.Read(prevHash[:])
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: 0},
		Sequence:         wire.MaxTxInSequenceNum,
		Witness:          wire.TxWitness{make([]byte, 64)},
	})
	// change output first, so the lockup is not trivially at index 0
	changeScript, err := txscript.PayToTaprootScript(s.publicKey)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	tx.AddTxOut(&wire.TxOut{Value: 100_000, PkScript: changeScript})
	tx.AddTxOut(&wire.TxOut{Value: int64(st.OnchainAmount), PkScript: st.LockupScript})
	st.LockupTx = tx
	s.mu.Unlock()

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	if err := s.PushUpdate(id, "transaction.mempool", tx.TxHash().String(), hex.EncodeToString(buf.Bytes())); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Server) handleReverseClaim(w http.ResponseWriter, r *http.Request, id string) {
	var req boltz.ReverseClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.swaps[id]
	if !ok || st.Kind != kindReverse {
		writeError(w, http.StatusNotFound, "swap not found")
		return
	}
	if s.behavior.FailClaims {
		writeError(w, http.StatusInternalServerError, "cooperative claim disabled by mock config")
		return
	}
	if st.LockupTx == nil {
		writeError(w, http.StatusBadRequest, "swap not locked up")
		return
	}

	preimage, err := hex.DecodeString(req.Preimage)
	if err != nil || sha256.Sum256(preimage) != st.PaymentHash {
		writeError(w, http.StatusBadRequest, "invalid preimage")
		return
	}
	st.Preimage = preimage

	claimTx, err := deserializeTx(req.Transaction)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid transaction: %s", err))
		return
	}
	if req.Index < 0 || req.Index >= len(claimTx.TxIn) {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	clientNonce, err := parsePubNonce(req.PubNonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid pubNonce: %s", err))
		return
	}

	msg, err := s.sighash(st, claimTx, req.Index)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	serverNonces, err := musig2.GenNonces(musig2.WithPublicKey(s.publicKey))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	partial, err := s.sign(st, serverNonces, clientNonce, msg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var scalar [32]byte
	partial.S.PutBytesUnchecked(scalar[:])
	writeJSON(w, http.StatusOK, boltz.PartialSignature{
		PubNonce:         hex.EncodeToString(serverNonces.PubNonce[:]),
		PartialSignature: hex.EncodeToString(scalar[:]),
	})
}

func (s *Server) sighash(st *swapState, tx *wire.MsgTx, index int) ([32]byte, error) {
	prevOutPoint := tx.TxIn[index].PreviousOutPoint
	if prevOutPoint.Hash != st.LockupTx.TxHash() || int(prevOutPoint.Index) >= len(st.LockupTx.TxOut) {
		return [32]byte{}, fmt.Errorf("transaction doesn't spend the lockup output")
	}
	prevOut := st.LockupTx.TxOut[prevOutPoint.Index]
	if !bytes.Equal(prevOut.PkScript, st.LockupScript) {
		return [32]byte{}, fmt.Errorf("transaction doesn't spend the lockup output")
	}

	prevFetcher := txscript.NewMultiPrevOutFetcher(map[wire.OutPoint]*wire.TxOut{prevOutPoint: prevOut})
	sigHashes := txscript.NewTxSigHashes(tx, prevFetcher)
	hash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, tx, index, prevFetcher,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("taproot message: %w", err)
	}
	var msg [32]byte
	copy(msg[:], hash)
	return msg, nil
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req boltz.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	tx, err := deserializeTx(req.Hex)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid transaction: %s", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.swaps {
		if st.LockupTx == nil || tx.TxIn[0].PreviousOutPoint.Hash != st.LockupTx.TxHash() {
			continue
		}
		msg, err := s.sighash(st, tx, 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(tx.TxIn[0].Witness) != 1 {
			writeError(w, http.StatusBadRequest, "expected a key path spend")
			return
		}
		sig, err := schnorr.ParseSignature(tx.TxIn[0].Witness[0])
		if err != nil || !sig.Verify(msg[:], st.OutputKey) {
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		st.BroadcastTx = tx
		writeJSON(w, http.StatusCreated, boltz.BroadcastResponse{Id: tx.TxHash().String()})
		return
	}

	writeError(w, http.StatusBadRequest, "bad-txns-inputs-missingorspent")
}

func (s *Server) handleAdminBehavior(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.getBehavior())
	case http.MethodPost:
		var b Behavior
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		s.SetBehavior(b)
		writeJSON(w, http.StatusOK, b)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleAdminSwap(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) != 4 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[2]

	switch parts[3] {
	case "event":
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
			writeError(w, http.StatusBadRequest, "status is required")
			return
		}
		if err := s.PushUpdate(id, req.Status, "", ""); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case "lockup":
		if _, err := s.LockupReverse(id); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) getSwap(id string) (swapState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.swaps[id]
	if !ok {
		return swapState{}, false
	}
	return *st, true
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func randomID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func randomTaprootAddress(net *chaincfg.Params) (string, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(key.PubKey()), net)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
