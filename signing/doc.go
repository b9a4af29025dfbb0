// Package signing verifies firmware artifact signatures.
//
// Warped Pinball releases carry a detached RSA signature computed over the
// SHA-256 digest of the artifact payload (RSASSA-PKCS1-v1_5). The vendor
// public key is embedded in this package as a process-wide constant; every
// artifact is checked against it before any byte reaches hardware.
//
// Verification is unconditional and fails closed: a malformed signature, a
// key mismatch, or a corrupted payload all yield a RejectedError, never a
// silent pass. There is no mode or flag that bypasses it.
//
//	if err := signing.Verify(payload, sig); err != nil {
//	    var rejected *signing.RejectedError
//	    if errors.As(err, &rejected) {
//	        // artifact must not be flashed
//	    }
//	}
package signing
