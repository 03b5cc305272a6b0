package swap

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/lightningnetwork/lnd/lntypes"
)

// VerifyPreimage reports whether sha256(preimage) equals paymentHash,
// comparing in constant time.
func VerifyPreimage(preimage []byte, paymentHash lntypes.Hash) bool {
	hash := sha256.Sum256(preimage)
	return subtle.ConstantTimeCompare(hash[:], paymentHash[:]) == 1
}

func validatePreimage(preimage []byte, paymentHash lntypes.Hash) error {
	if len(preimage) != lntypes.PreimageSize {
		return fmt.Errorf(
			"%w: preimage must be %d bytes, got %d",
			ErrPreimageMismatch, lntypes.PreimageSize, len(preimage),
		)
	}
	if !VerifyPreimage(preimage, paymentHash) {
		return fmt.Errorf("%w: expected hash %s", ErrPreimageMismatch, paymentHash)
	}
	return nil
}

func newPreimage() (lntypes.Preimage, error) {
	var preimage lntypes.Preimage
	if _, err := rand.Read(preimage[:]); err != nil {
		return lntypes.Preimage{}, fmt.Errorf("failed to generate preimage: %w", err)
	}
	return preimage, nil
}
