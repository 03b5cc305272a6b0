package swap

import (
	"encoding/hex"
	"fmt"

	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/btcsuite/btcd/txscript"
)

// SwapTreeMerkleRoot is the taproot script root committing to the claim and
// refund leaves of a swap.
func SwapTreeMerkleRoot(tree boltz.SwapTree) ([]byte, error) {
	claimLeaf, err := parseLeaf(tree.ClaimLeaf)
	if err != nil {
		return nil, fmt.Errorf("invalid claim leaf: %w", err)
	}
	refundLeaf, err := parseLeaf(tree.RefundLeaf)
	if err != nil {
		return nil, fmt.Errorf("invalid refund leaf: %w", err)
	}

	scriptTree := txscript.AssembleTaprootScriptTree(claimLeaf, refundLeaf)
	root := scriptTree.RootNode.TapHash()
	return root[:], nil
}

func parseLeaf(leaf boltz.SwapTreeLeaf) (txscript.TapLeaf, error) {
	if txscript.TapscriptLeafVersion(leaf.Version) != txscript.BaseLeafVersion {
		return txscript.TapLeaf{}, fmt.Errorf("unsupported leaf version %d", leaf.Version)
	}
	script, err := hex.DecodeString(leaf.Output)
	if err != nil {
		return txscript.TapLeaf{}, fmt.Errorf("decode script: %w", err)
	}
	if len(script) == 0 {
		return txscript.TapLeaf{}, fmt.Errorf("empty script")
	}
	return txscript.NewBaseTapLeaf(script), nil
}
