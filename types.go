package gatekeep

import (
	"context"
	"time"

	"github.com/staynest/gatekeep/password"
)

// Credential is what a [CredentialProvider] returns for an identifier.
type Credential struct {
	UserID string
	Role   string
	Record password.Record
}

// CredentialProvider is the persistence collaborator owning user records.
//
// GetCredential must return [ErrCredentialNotFound] (possibly wrapped) for
// unknown identifiers. UpdateCredential must persist hash and salt together.
type CredentialProvider interface {
	GetCredential(ctx context.Context, identifier string) (Credential, error)
	UpdateCredential(ctx context.Context, userID string, record password.Record) error
}

// LoginResult is returned by [Engine.Authenticate]. AccessToken is empty
// when tokens are disabled.
type LoginResult struct {
	UserID      string
	Role        string
	SessionID   string
	AccessToken string
	ExpiresAt   time.Time
}
