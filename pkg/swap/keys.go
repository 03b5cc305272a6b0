package swap

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// KeyMaterial is the per-swap key pair plus the secret seed of the single
// MuSig2 nonce the session will ever use. It must not outlive its session.
type KeyMaterial struct {
	privateKey *btcec.PrivateKey
	nonceSeed  [32]byte
}

func NewKeyMaterial() (*KeyMaterial, error) {
	privateKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	keys := &KeyMaterial{privateKey: privateKey}
	if _, err := rand.Read(keys.nonceSeed[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce seed: %w", err)
	}
	return keys, nil
}

func (k *KeyMaterial) PublicKey() *btcec.PublicKey {
	return k.privateKey.PubKey()
}

// PublicKeyHex is the compressed public key as sent to the swap service.
func (k *KeyMaterial) PublicKeyHex() string {
	return hex.EncodeToString(k.PublicKey().SerializeCompressed())
}

// Zero wipes the secrets. The key material is unusable afterwards.
func (k *KeyMaterial) Zero() {
	k.privateKey.Zero()
	clear(k.nonceSeed[:])
}
