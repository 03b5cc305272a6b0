package swap

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ccoveille/go-safecast"
	"github.com/lightningnetwork/lnd/lntypes"
)

// dustLimit is the P2TR dust threshold.
const dustLimit = 330

type claimTxParams struct {
	LockupOutpoint  wire.OutPoint
	LockupAmount    uint64
	DestinationAddr string
	FeeRate         uint64 // sat/vB
	Network         *chaincfg.Params
}

// buildClaimTx creates the unsigned key path spend of a lockup output to a
// single destination, paying feeRate on the estimated size of the signed tx.
func buildClaimTx(params claimTxParams) (*wire.MsgTx, error) {
	destAddr, err := btcutil.DecodeAddress(params.DestinationAddr, params.Network)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}
	if !destAddr.IsForNet(params.Network) {
		return nil, fmt.Errorf("destination address is not for %s", params.Network.Name)
	}
	pkScript, err := payToAddrScript(destAddr)
	if err != nil {
		return nil, err
	}

	lockupAmount, err := safecast.ToInt64(params.LockupAmount)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: params.LockupOutpoint,
		Sequence:         wire.MaxTxInSequenceNum,
		// Placeholder of a schnorr signature, for size estimation only.
		Witness: wire.TxWitness{make([]byte, 64)},
	})
	tx.AddTxOut(&wire.TxOut{Value: lockupAmount, PkScript: pkScript})

	fee, err := safecast.ToInt64(uint64(computeVSize(tx)) * params.FeeRate)
	if err != nil {
		return nil, err
	}
	if lockupAmount-fee <= dustLimit {
		return nil, fmt.Errorf("not enough funds to cover network fees")
	}

	tx.TxOut[0].Value = lockupAmount - fee
	tx.TxIn[0].Witness = nil
	return tx, nil
}

func computeVSize(tx *wire.MsgTx) lntypes.VByte {
	baseSize := tx.SerializeSizeStripped()
	totalSize := tx.SerializeSize()
	weight := totalSize + baseSize*3
	return lntypes.WeightUnit(uint64(weight)).ToVB()
}

func payToAddrScript(addr btcutil.Address) ([]byte, error) {
	switch addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash,
		*btcutil.AddressWitnessScriptHash,
		*btcutil.AddressTaproot:
		return txscript.PayToAddrScript(addr)
	default:
		return nil, fmt.Errorf("unsupported address type: %T", addr)
	}
}

func serializeTransaction(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func deserializeTransaction(txHex string) (*wire.MsgTx, error) {
	txBytes, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}

	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return tx, nil
}

func findOutputForScript(tx *wire.MsgTx, pkScript []byte) (uint32, uint64, error) {
	for i, out := range tx.TxOut {
		if !bytes.Equal(out.PkScript, pkScript) {
			continue
		}
		if out.Value <= 0 {
			return 0, 0, fmt.Errorf("matched output %d has non-positive value %d", i, out.Value)
		}
		vout, err := safecast.ToUint32(i)
		if err != nil {
			return 0, 0, err
		}
		return vout, uint64(out.Value), nil
	}
	return 0, 0, fmt.Errorf("lockup output not found in tx %s", tx.TxHash())
}

func newPrevOutputFetcher(prevOut *wire.TxOut, prevOutPoint wire.OutPoint) txscript.PrevOutputFetcher {
	return txscript.NewMultiPrevOutFetcher(map[wire.OutPoint]*wire.TxOut{
		prevOutPoint: prevOut,
	})
}
