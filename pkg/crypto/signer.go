// Package crypto provides record signing and verification for the Truth Chain.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// Signature type prefix and separator.
const (
	SigSeparator     = ":"
	SigPrefixEd25519 = "ed25519"
)

// Signer signs committed records as the chain issuer.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() string
	SignRecord(r *contracts.Record) error
	VerifyRecord(r contracts.Record) (bool, error)
}

// Ed25519Signer is the default issuer key.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	KeyID   string
}

// NewEd25519Signer generates a fresh issuer key.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, KeyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		KeyID:   keyID,
	}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.privKey, data)
	return hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// SignRecord signs the record's content hash. The hash must already be set;
// the signature covers the hash, never itself.
func (s *Ed25519Signer) SignRecord(r *contracts.Record) error {
	if r.Hash == "" {
		return fmt.Errorf("record %s has no hash to sign", r.ID)
	}
	sig, err := s.Sign([]byte(r.Hash))
	if err != nil {
		return err
	}
	r.Signature = sig
	r.SignatureType = SigPrefixEd25519 + SigSeparator + s.KeyID
	return nil
}

// VerifyRecord checks the issuer signature over the record hash.
func (s *Ed25519Signer) VerifyRecord(r contracts.Record) (bool, error) {
	if r.Signature == "" {
		return false, fmt.Errorf("record %s is unsigned", r.ID)
	}
	return Verify(s.PublicKey(), r.Signature, []byte(r.Hash))
}

// Verify verifies a hex signature against a hex-encoded Ed25519 public key.
func Verify(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size")
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), data, sig), nil
}
