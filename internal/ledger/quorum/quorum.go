// Package quorum holds the pure confirmation-quorum evaluation. It is
// stateless given a record's attestation set.
package quorum

import (
	id "registrum/pkg/domain"
	"registrum/internal/ledger/models"
)

// DefaultThreshold is the number of distinct entity roles required to treat a
// reported death as fact.
const DefaultThreshold = 2

// DistinctRoles counts the role-level quorum credits in an attestation set.
// Two hospitals attesting yield one credit: quorum is per sector, so no single
// sector can finalize a death on its own.
func DistinctRoles(attestations []models.Attestation) int {
	seen := make(map[id.EntityRole]bool, len(id.AllEntityRoles()))
	for _, a := range attestations {
		if a.Role.IsValid() {
			seen[a.Role] = true
		}
	}
	return len(seen)
}

// HasQuorum reports whether the attestation set satisfies the threshold.
// A threshold above the number of recognized roles can never be satisfied.
func HasQuorum(attestations []models.Attestation, threshold int) bool {
	if threshold < 1 {
		threshold = 1
	}
	return DistinctRoles(attestations) >= threshold
}
