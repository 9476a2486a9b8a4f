package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/staynest/gatekeep"
	"github.com/staynest/gatekeep/password"
)

var (
	errAccountExists     = errors.New("account already exists")
	errResetTokenInvalid = errors.New("reset token invalid or expired")
)

type account struct {
	userID     string
	identifier string
	role       string
	record     password.Record
}

type resetGrant struct {
	userID    string
	expiresAt time.Time
}

// accountStore is the demo persistence layer. Production deployments plug
// their own gatekeep.CredentialProvider over the relational schema.
type accountStore struct {
	mu      sync.RWMutex
	byID    map[string]*account
	byIdent map[string]string
	resets  map[string]resetGrant
	admin   string
	now     func() time.Time
}

func newAccountStore(adminIdentifier string) *accountStore {
	return &accountStore{
		byID:    make(map[string]*account),
		byIdent: make(map[string]string),
		resets:  make(map[string]resetGrant),
		admin:   normalizeIdentifier(adminIdentifier),
		now:     time.Now,
	}
}

func normalizeIdentifier(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func (s *accountStore) Exists(identifier string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byIdent[normalizeIdentifier(identifier)]
	return ok
}

func (s *accountStore) Create(identifier string, rec password.Record) (string, error) {
	ident := normalizeIdentifier(identifier)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byIdent[ident]; ok {
		return "", errAccountExists
	}

	role := "guest"
	if s.admin != "" && ident == s.admin {
		role = "admin"
	}
	a := &account{
		userID:     uuid.NewString(),
		identifier: ident,
		role:       role,
		record:     rec,
	}
	s.byID[a.userID] = a
	s.byIdent[ident] = a.userID
	return a.userID, nil
}

func (s *accountStore) IdentifierFor(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[userID]
	if !ok {
		return "", false
	}
	return a.identifier, true
}

func (s *accountStore) GetCredential(_ context.Context, identifier string) (gatekeep.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdent[normalizeIdentifier(identifier)]
	if !ok {
		return gatekeep.Credential{}, gatekeep.ErrCredentialNotFound
	}
	a := s.byID[id]
	return gatekeep.Credential{UserID: a.userID, Role: a.role, Record: a.record}, nil
}

func (s *accountStore) UpdateCredential(_ context.Context, userID string, rec password.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[userID]
	if !ok {
		return gatekeep.ErrCredentialNotFound
	}
	a.record = rec
	return nil
}

// GrantReset stores a one-time reset token for identifier. Unknown
// identifiers are ignored so callers cannot probe for accounts.
func (s *accountStore) GrantReset(identifier, token string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdent[normalizeIdentifier(identifier)]
	if !ok {
		return
	}
	s.resets[token] = resetGrant{userID: id, expiresAt: s.now().Add(ttl)}
}

// ConsumeReset returns the user a token was issued for and invalidates it.
func (s *accountStore) ConsumeReset(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.resets[token]
	if !ok {
		return "", errResetTokenInvalid
	}
	delete(s.resets, token)
	if s.now().After(grant.expiresAt) {
		return "", errResetTokenInvalid
	}
	return grant.userID, nil
}
