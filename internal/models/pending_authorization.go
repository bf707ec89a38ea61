package models

import (
	"database/sql"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/animetinder/auth/internal/storage"
	"github.com/animetinder/auth/internal/utilities"
)

// PendingAuthorizationRetentionFactor is how many flow ttls a pending
// authorization outlives its expiry before cleanup removes it, so a late
// callback is still reported as expired rather than unknown.
const PendingAuthorizationRetentionFactor = 2

// PendingAuthorization holds the code verifier of a login that was sent to
// the provider and has not come back yet. It is keyed by the OAuth state.
type PendingAuthorization struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	State               string    `json:"-" db:"state"`
	CodeVerifier        string    `json:"-" db:"code_verifier"`
	CodeChallengeMethod string    `json:"code_challenge_method" db:"code_challenge_method"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

func (PendingAuthorization) TableName() string {
	tableName := "pending_authorizations"
	return tableName
}

func NewPendingAuthorization(state, verifier, method string, now time.Time) *PendingAuthorization {
	return &PendingAuthorization{
		ID:                  uuid.Must(uuid.NewV4()),
		State:               state,
		CodeVerifier:        verifier,
		CodeChallengeMethod: method,
		CreatedAt:           now.UTC(),
	}
}

// IsExpired reports whether more than ttl has passed since the
// authorization was created.
func (p *PendingAuthorization) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.CreatedAt) > ttl
}

// CreatePendingAuthorization persists p. A state that is already pending
// yields a ConflictError.
func CreatePendingAuthorization(tx *storage.Connection, p *PendingAuthorization) error {
	if err := tx.Create(p); err != nil {
		if utilities.IsUniqueViolation(err) {
			return ConflictError{Resource: "pending authorization"}
		}
		return errors.Wrap(err, "error creating pending authorization")
	}
	return nil
}

// ConsumePendingAuthorization removes and returns the pending authorization
// for state. Of any number of concurrent callers at most one gets the record,
// the rest see PendingAuthorizationNotFoundError.
func ConsumePendingAuthorization(tx *storage.Connection, state string) (*PendingAuthorization, error) {
	obj := &PendingAuthorization{}
	if err := tx.Q().Where("state = ?", state).First(obj); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, PendingAuthorizationNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding pending authorization")
	}

	count, err := tx.RawQuery("delete from "+obj.TableName()+" where id = ?", obj.ID).ExecWithCount()
	if err != nil {
		return nil, errors.Wrap(err, "error deleting pending authorization")
	}
	if count == 0 {
		// another callback consumed it between the select and the delete
		return nil, PendingAuthorizationNotFoundError{}
	}

	return obj, nil
}
