package mockboltz

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

// EncodeInvoice signs a bolt11 invoice for amount sats with nodeKey.
func EncodeInvoice(
	net *chaincfg.Params, nodeKey *btcec.PrivateKey, paymentHash [32]byte, amount uint64,
) (string, error) {
	var paymentAddr [32]byte
	copy(paymentAddr[:], chainhash.HashB(paymentHash[:]))

	invoice, err := zpay32.NewInvoice(
		net, paymentHash, time.Now(),
		zpay32.Amount(lnwire.MilliSatoshi(amount*1000)),
		zpay32.Description("swap"),
		zpay32.Expiry(time.Hour),
		zpay32.PaymentAddr(paymentAddr),
		zpay32.Features(lnwire.NewFeatureVector(
			lnwire.NewRawFeatureVector(lnwire.TLVOnionPayloadRequired, lnwire.PaymentAddrRequired),
			lnwire.Features,
		)),
	)
	if err != nil {
		return "", fmt.Errorf("new invoice: %w", err)
	}

	return invoice.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			return ecdsa.SignCompact(nodeKey, chainhash.HashB(msg), true), nil
		},
	})
}

func decodeInvoice(invoice string, net *chaincfg.Params) (*zpay32.Invoice, error) {
	decoded, err := zpay32.Decode(invoice, net)
	if err != nil {
		return nil, err
	}
	if decoded.MilliSat == nil || decoded.PaymentHash == nil {
		return nil, fmt.Errorf("invoice without amount or payment hash")
	}
	return decoded, nil
}

func buildSwapTree(preimageHash160, claimKeyXOnly, refundKeyXOnly []byte, timeout uint32) (boltz.SwapTree, error) {
	claimScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_SIZE).
		AddData([]byte{0x20}).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_HASH160).
		AddData(preimageHash160).
		AddOp(txscript.OP_EQUALVERIFY).
		AddData(claimKeyXOnly).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return boltz.SwapTree{}, fmt.Errorf("build claim script: %w", err)
	}

	refundScript, err := txscript.NewScriptBuilder().
		AddData(refundKeyXOnly).
		AddOp(txscript.OP_CHECKSIGVERIFY).
		AddInt64(int64(timeout)).
		AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		Script()
	if err != nil {
		return boltz.SwapTree{}, fmt.Errorf("build refund script: %w", err)
	}

	return boltz.SwapTree{
		ClaimLeaf:  boltz.SwapTreeLeaf{Version: uint8(txscript.BaseLeafVersion), Output: hex.EncodeToString(claimScript)},
		RefundLeaf: boltz.SwapTreeLeaf{Version: uint8(txscript.BaseLeafVersion), Output: hex.EncodeToString(refundScript)},
	}, nil
}

func swapTreeMerkleRoot(tree boltz.SwapTree) ([]byte, error) {
	claimScript, err := hex.DecodeString(tree.ClaimLeaf.Output)
	if err != nil {
		return nil, fmt.Errorf("decode claim leaf: %w", err)
	}
	refundScript, err := hex.DecodeString(tree.RefundLeaf.Output)
	if err != nil {
		return nil, fmt.Errorf("decode refund leaf: %w", err)
	}

	treeBuilder := txscript.AssembleTaprootScriptTree(
		txscript.NewBaseTapLeaf(claimScript), txscript.NewBaseTapLeaf(refundScript),
	)
	if treeBuilder == nil || treeBuilder.RootNode == nil {
		return nil, fmt.Errorf("assemble taproot tree")
	}
	h := treeBuilder.RootNode.TapHash()
	return h[:], nil
}

func xOnly(pub *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pub)
}

func parsePubKey(pubkeyHex string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}

func parsePubNonce(nonceHex string) ([66]byte, error) {
	var nonce [66]byte
	b, err := hex.DecodeString(nonceHex)
	if err != nil {
		return nonce, err
	}
	if len(b) != musig2.PubNonceSize {
		return nonce, fmt.Errorf("invalid nonce len: got %d want %d", len(b), musig2.PubNonceSize)
	}
	copy(nonce[:], b)
	return nonce, nil
}

func parsePartialSig(sigHex string) (*musig2.PartialSignature, error) {
	b, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid partial signature len: got %d want 32", len(b))
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("partial signature overflows the curve order")
	}
	return &musig2.PartialSignature{S: &s}, nil
}

func deserializeTx(txHex string) (*wire.MsgTx, error) {
	b, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	if len(tx.TxIn) == 0 {
		return nil, fmt.Errorf("transaction without inputs")
	}
	return tx, nil
}
