package collaborators

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
)

// entityRecord is one registered institution in the mock credential store.
type entityRecord struct {
	identity   id.EntityIdentity
	secretHash []byte
}

// MockCredentialStore authenticates against a fixed in-memory table with
// bcrypt-hashed secrets.
type MockCredentialStore struct {
	Latency time.Duration

	mu       sync.RWMutex
	entities map[string]entityRecord
}

func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{entities: make(map[string]entityRecord)}
}

// RegisterEntity adds an institution. The secret is stored hashed; plaintext
// never leaves this call.
func (s *MockCredentialStore) RegisterEntity(identity id.EntityIdentity, clientID, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[clientID] = entityRecord{identity: identity, secretHash: hash}
	return nil
}

func (s *MockCredentialStore) Authenticate(_ context.Context, role id.EntityRole, creds Credentials) (id.EntityIdentity, error) {
	time.Sleep(s.Latency)
	s.mu.RLock()
	record, ok := s.entities[creds.ClientID]
	s.mu.RUnlock()
	if !ok {
		return id.EntityIdentity{}, dErrors.New(dErrors.CodeUnauthorized, "unknown client")
	}
	if bcrypt.CompareHashAndPassword(record.secretHash, []byte(creds.Secret)) != nil {
		return id.EntityIdentity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if record.identity.Role != role {
		return id.EntityIdentity{}, dErrors.New(dErrors.CodeForbidden, "client is not registered for role "+role.String())
	}
	return record.identity, nil
}

// MockProofService returns a deterministic match decision derived from the
// capture artifact so tests can steer outcomes: an artifact whose SHA-256
// leads with a zero byte is rejected, everything else matches.
type MockProofService struct {
	Latency time.Duration
	// Err, when set, is returned on every call.
	Err error
}

func (s MockProofService) GenerateProof(ctx context.Context, captureArtifact []byte, subject id.NationalID) (ProofResult, error) {
	select {
	case <-ctx.Done():
		return ProofResult{}, ctx.Err()
	case <-time.After(s.Latency):
	}
	if s.Err != nil {
		return ProofResult{}, s.Err
	}
	sum := sha256.Sum256(append(captureArtifact, []byte(subject)...))
	match := sum[0] != 0
	confidence := 0.5 + float64(binary.BigEndian.Uint16(sum[1:3]))/131072.0
	if !match {
		confidence = 1 - confidence
	}
	return ProofResult{Match: match, Confidence: confidence}, nil
}

// MockCertificateIssuer issues random certificate IDs and remembers what it
// issued so tests can assert at-most-once behavior.
type MockCertificateIssuer struct {
	Latency time.Duration
	// Fail makes every call fail with a transient error (retry testing).
	Fail bool

	mu     sync.Mutex
	issued map[id.RecordID]id.CertificateID
}

func NewMockCertificateIssuer() *MockCertificateIssuer {
	return &MockCertificateIssuer{issued: make(map[id.RecordID]id.CertificateID)}
}

func (m *MockCertificateIssuer) Issue(_ context.Context, subject id.NationalID, recordID id.RecordID) (id.CertificateID, error) {
	time.Sleep(m.Latency)
	if m.Fail {
		return id.CertificateID{}, dErrors.New(dErrors.CodeUnavailable, "certificate authority unreachable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.issued[recordID]; ok {
		return existing, nil
	}
	cert := id.CertificateID(uuid.New())
	m.issued[recordID] = cert
	return cert, nil
}

// IssueCount reports how many distinct records got certificates.
func (m *MockCertificateIssuer) IssueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.issued)
}

// MockPensionLedger records stop commands.
type MockPensionLedger struct {
	Latency time.Duration
	Fail    bool

	mu      sync.Mutex
	stopped map[id.RecordID]id.NationalID
}

func NewMockPensionLedger() *MockPensionLedger {
	return &MockPensionLedger{stopped: make(map[id.RecordID]id.NationalID)}
}

func (m *MockPensionLedger) Stop(_ context.Context, subject id.NationalID, recordID id.RecordID) error {
	time.Sleep(m.Latency)
	if m.Fail {
		return dErrors.New(dErrors.CodeUnavailable, "pension ledger unreachable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped[recordID] = subject
	return nil
}

// StopCount reports how many distinct records had pensions stopped.
func (m *MockPensionLedger) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stopped)
}
