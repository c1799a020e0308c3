// Package sign implements the bid authentication protocol: a canonical
// byte rendering of the bid tuple, hashed with SHA-256 and signed with
// the bidder's RSA key.
package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSignature reports a signature that does not match the
// payload under the claimed bidder's public key.
var ErrInvalidSignature = errors.New("invalid signature")

// CanonicalBidBytes renders the bid tuple deterministically. The amount
// is pinned to two decimals and the timestamp to RFC3339Nano in UTC so
// that every party derives identical bytes from identical fields; any
// field difference changes the digest.
func CanonicalBidBytes(auctionID, bidderID string, amount float64, ts time.Time) []byte {
	return fmt.Appendf(nil, "%s|%s|%.2f|%s",
		auctionID, bidderID, amount, ts.UTC().Format(time.RFC3339Nano))
}

// Signer produces bid signatures with a private key.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner wraps a private key.
func NewSigner(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// SignBid signs the canonical bid bytes and returns the signature in
// base64.
func (s *Signer) SignBid(auctionID, bidderID string, amount float64, ts time.Time) (string, error) {
	digest := sha256.Sum256(CanonicalBidBytes(auctionID, bidderID, amount, ts))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign bid: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyBid reconstructs the canonical bytes from the received fields
// and checks the base64 signature against the given public key.
func VerifyBid(pub *rsa.PublicKey, auctionID, bidderID string, amount float64, ts time.Time, sigB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	digest := sha256.Sum256(CanonicalBidBytes(auctionID, bidderID, amount, ts))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
