// Package collaborators defines the abstract external services the core
// consumes. Mock implementations use deterministic data and a configurable
// latency to mimic real-world calls; production adapters are wired in
// deployment-specific builds.
package collaborators

//go:generate mockgen -source=collaborators.go -destination=mocks/mocks.go -package=mocks CredentialStore,BiometricProofService,CertificateIssuer,PensionLedger

import (
	"context"

	id "registrum/pkg/domain"
)

// Credentials is whatever secret material an institution presents.
type Credentials struct {
	ClientID string
	Secret   string
}

// CredentialStore authenticates attesting institutions. The core trusts the
// returned role and entity ID.
type CredentialStore interface {
	Authenticate(ctx context.Context, role id.EntityRole, creds Credentials) (id.EntityIdentity, error)
}

// ProofResult is the outcome of biometric proof generation. The service is
// untrusted with respect to latency and trusted with respect to result
// semantics.
type ProofResult struct {
	Match      bool
	Confidence float64
}

// BiometricProofService generates a liveness+identity proof from an opaque
// capture artifact.
type BiometricProofService interface {
	GenerateProof(ctx context.Context, captureArtifact []byte, subject id.NationalID) (ProofResult, error)
}

// CertificateIssuer issues the authoritative death certificate.
type CertificateIssuer interface {
	Issue(ctx context.Context, subject id.NationalID, recordID id.RecordID) (id.CertificateID, error)
}

// PensionLedger terminates pension payment for a deceased subject.
type PensionLedger interface {
	Stop(ctx context.Context, subject id.NationalID, recordID id.RecordID) error
}
