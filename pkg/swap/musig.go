package swap

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SigningSession is the local half of the 2-of-2 MuSig2 key spend of a swap
// lockup output.
//
// The signer set is [service, ours], unsorted, and the aggregate key is
// tweaked with the swap tree merkle root. Nonces are aggregated exactly once
// and a single partial signature is produced, so the secret nonce is never
// reused.
type SigningSession struct {
	keys       *KeyMaterial
	signers    []*btcec.PublicKey
	merkleRoot []byte
	outputKey  *btcec.PublicKey
	nonces     *musig2.Nonces

	mu            sync.Mutex
	combinedNonce *[musig2.PubNonceSize]byte
	ourPartial    *musig2.PartialSignature
	msg           [32]byte
}

func NewSigningSession(
	keys *KeyMaterial, theirPublicKey *btcec.PublicKey, tree boltz.SwapTree,
) (*SigningSession, error) {
	if keys == nil {
		return nil, fmt.Errorf("nil key material")
	}
	if theirPublicKey == nil {
		return nil, fmt.Errorf("nil their public key")
	}

	merkleRoot, err := SwapTreeMerkleRoot(tree)
	if err != nil {
		return nil, err
	}

	signers := []*btcec.PublicKey{theirPublicKey, keys.PublicKey()}
	outputKey, err := ComputeTweakedOutputKey(signers, merkleRoot)
	if err != nil {
		return nil, err
	}

	nonces, err := musig2.GenNonces(
		musig2.WithPublicKey(keys.PublicKey()),
		musig2.WithNonceSecretKeyAux(keys.privateKey),
		musig2.WithCustomRand(bytes.NewReader(keys.nonceSeed[:])),
	)
	if err != nil {
		return nil, fmt.Errorf("musig2.GenNonces: %w", err)
	}

	return &SigningSession{
		keys:       keys,
		signers:    signers,
		merkleRoot: merkleRoot,
		outputKey:  outputKey,
		nonces:     nonces,
	}, nil
}

func (s *SigningSession) OutputKey() *btcec.PublicKey {
	return s.outputKey
}

// LockupAddress is the P2TR address of the tweaked aggregate key.
func (s *SigningSession) LockupAddress(net *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(s.outputKey), net)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (s *SigningSession) LockupScript() ([]byte, error) {
	return txscript.PayToTaprootScript(s.outputKey)
}

func (s *SigningSession) PublicNonce() [musig2.PubNonceSize]byte {
	return s.nonces.PubNonce
}

func (s *SigningSession) AggregateNonces(theirNonce [musig2.PubNonceSize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.combinedNonce != nil {
		return ErrNoncesAlreadyAggregated
	}

	combined, err := musig2.AggregateNonces([][musig2.PubNonceSize]byte{
		s.nonces.PubNonce,
		theirNonce,
	})
	if err != nil {
		return fmt.Errorf("musig2.AggregateNonces: %w", err)
	}

	s.combinedNonce = &combined
	return nil
}

// SignPartial returns our public nonce and partial signature for msg in the
// format the service expects: the 32 byte scalar S, hex encoded.
func (s *SigningSession) SignPartial(msg [32]byte) (boltz.PartialSignature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.combinedNonce == nil {
		return boltz.PartialSignature{}, ErrNoncesNotAggregated
	}
	if s.ourPartial != nil {
		return boltz.PartialSignature{}, ErrSessionAlreadySigned
	}

	ps, err := musig2.Sign(
		s.nonces.SecNonce,
		s.keys.privateKey,
		*s.combinedNonce,
		s.signers,
		msg,
		musig2.WithTaprootSignTweak(s.merkleRoot),
		musig2.WithFastSign(),
	)
	if err != nil {
		return boltz.PartialSignature{}, fmt.Errorf("musig2.Sign: %w", err)
	}
	clear(s.nonces.SecNonce[:])

	s.ourPartial = ps
	s.msg = msg

	sig := ps.S.Bytes()
	return boltz.PartialSignature{
		PubNonce:         SerializePubNonce(s.nonces.PubNonce),
		PartialSignature: hex.EncodeToString(sig[:]),
	}, nil
}

// CombinePartial merges the service partial signature with ours into the
// final key spend signature, verified against the output key.
func (s *SigningSession) CombinePartial(theirPartialHex string) (*schnorr.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ourPartial == nil {
		return nil, fmt.Errorf("missing our partial signature")
	}

	theirPartial, err := ParsePartialSignatureScalar32(theirPartialHex)
	if err != nil {
		return nil, err
	}

	sig := musig2.CombineSigs(
		s.ourPartial.R,
		[]*musig2.PartialSignature{s.ourPartial, theirPartial},
		musig2.WithTaprootTweakedCombine(s.msg, s.signers, s.merkleRoot, false),
	)
	if sig == nil || !sig.Verify(s.msg[:], s.outputKey) {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// TaprootMessage computes the BIP341 sighash for a key path spend of the
// given input.
func TaprootMessage(
	tx *wire.MsgTx,
	inputIndex int,
	prevOutFetcher txscript.PrevOutputFetcher,
) ([32]byte, error) {
	if tx == nil {
		return [32]byte{}, fmt.Errorf("nil tx")
	}
	if inputIndex < 0 || inputIndex >= len(tx.TxIn) {
		return [32]byte{}, fmt.Errorf("inputIndex out of range")
	}

	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)
	hash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, tx, inputIndex, prevOutFetcher,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("CalcTaprootSignatureHash: %w", err)
	}

	var msg [32]byte
	copy(msg[:], hash)
	return msg, nil
}

// ComputeTweakedOutputKey computes the P2TR output key for {keys, merkleRoot}.
func ComputeTweakedOutputKey(keys []*btcec.PublicKey, merkleRoot []byte) (*btcec.PublicKey, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty key set")
	}
	if len(merkleRoot) != 32 {
		return nil, fmt.Errorf("invalid merkleRoot len: got %d want 32", len(merkleRoot))
	}

	agg, _, _, err := musig2.AggregateKeys(keys, false)
	if err != nil {
		return nil, fmt.Errorf("AggregateKeys: %w", err)
	}

	return txscript.ComputeTaprootOutputKey(agg.FinalKey, merkleRoot), nil
}

func ParsePubNonce(nonceHex string) ([musig2.PubNonceSize]byte, error) {
	if len(nonceHex) != musig2.PubNonceSize*2 {
		return [musig2.PubNonceSize]byte{}, fmt.Errorf(
			"invalid nonce length: got %d want %d hex chars", len(nonceHex), musig2.PubNonceSize*2,
		)
	}
	b, err := hex.DecodeString(nonceHex)
	if err != nil {
		return [musig2.PubNonceSize]byte{}, fmt.Errorf("decode nonce hex: %w", err)
	}
	var n [musig2.PubNonceSize]byte
	copy(n[:], b)
	return n, nil
}

func SerializePubNonce(nonce [musig2.PubNonceSize]byte) string {
	return hex.EncodeToString(nonce[:])
}

// ParsePartialSignatureScalar32 parses the service partial signature format,
// a bare 32 byte scalar. R is left nil, the combined nonce point comes from
// our own partial signature.
func ParsePartialSignatureScalar32(sigHex string) (*musig2.PartialSignature, error) {
	b, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("decode partial sig hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid partial sig len: got %d want 32", len(b))
	}

	ps := &musig2.PartialSignature{S: new(btcec.ModNScalar)}
	if overflow := ps.S.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("partial sig scalar overflow")
	}
	return ps, nil
}
