package signing

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// RejectedError indicates that an artifact failed signature verification.
// An artifact that was rejected must never be transferred or retried with
// the same bytes.
type RejectedError struct {
	// Reason describes what failed
	Reason string

	// Err is the underlying crypto error, if any
	Err error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signature rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("signature rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Verify checks a detached signature over payload against the embedded
// vendor key. Returns nil only when the signature is valid; every failure
// mode yields a RejectedError.
func Verify(payload, signature []byte) error {
	return VerifyWithKey(trustedKey, payload, signature)
}

// VerifyWithKey checks a detached signature against an explicit public key.
// Exists so tests can exercise verification with their own key pairs; the
// flashing pipeline always uses the embedded key via Verify.
func VerifyWithKey(pub *rsa.PublicKey, payload, signature []byte) error {
	if pub == nil {
		return &RejectedError{Reason: "no verification key"}
	}
	if len(payload) == 0 {
		return &RejectedError{Reason: "empty payload"}
	}
	if len(signature) == 0 {
		return &RejectedError{Reason: "missing signature"}
	}

	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return &RejectedError{Reason: "payload does not match signature", Err: err}
	}

	return nil
}
