// Package auth covers the request-integrity half of admission: signature
// verification against a shared secret, and nonce-based replay rejection.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/pkg/apperrors"
)

// SecretSource resolves an access key to its owning credential. Backed by
// the identity subsystem; the gateway only reads.
type SecretSource interface {
	GetByAccessKey(ctx context.Context, accessKey string) (*model.Credential, error)
}

// Sign computes the request signature: hex SHA-256 over body followed by
// the secret key.
func Sign(body, secretKey string) string {
	sum := sha256.Sum256([]byte(body + secretKey))
	return hex.EncodeToString(sum[:])
}

// Verifier checks claimed signatures against server-side recomputation.
type Verifier struct {
	secrets SecretSource
}

func NewVerifier(secrets SecretSource) *Verifier {
	return &Verifier{secrets: secrets}
}

// Verify resolves the credential for accessKey, recomputes the signature
// over body and compares it with the claimed one. Missing key, lookup
// failure and mismatch all collapse to the same forbidden outcome.
func (v *Verifier) Verify(ctx context.Context, accessKey, body, claimedSign string) (*model.Credential, error) {
	if accessKey == "" || claimedSign == "" {
		return nil, apperrors.NewAuthFailed("missing access key or signature")
	}

	cred, err := v.secrets.GetByAccessKey(ctx, accessKey)
	if err != nil || cred == nil {
		return nil, apperrors.New(apperrors.ErrAuthFailed, "unknown access key", err)
	}

	expected := Sign(body, cred.SecretKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claimedSign)) != 1 {
		return nil, apperrors.NewAuthFailed("signature mismatch")
	}
	return cred, nil
}
