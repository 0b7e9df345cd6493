package social

import (
	"errors"
	"fmt"
)

// All registry failures resolve to one of these sentinels. Handlers map them
// to transport status codes with errors.Is, so wrapped variants (which carry
// the offending login or field) still match.
var (
	ErrInvalidInput       = errors.New("social: invalid input")
	ErrUserExists         = errors.New("social: account with this login already exists")
	ErrUnknownUser        = errors.New("social: user not registered")
	ErrInvalidCredentials = errors.New("social: invalid login or password")
	ErrConflict           = errors.New("social: conflicting information")
	ErrMissingAttribute   = errors.New("social: attribute not set")
	ErrEnemyRelation      = errors.New("social: blocked by enmity")
	ErrNoDirectMessages   = errors.New("social: no direct messages")
	ErrNoBroadcasts       = errors.New("social: no broadcast messages")
	ErrCommunityExists    = errors.New("social: community with this name already exists")
	ErrCommunityNotFound  = errors.New("social: community does not exist")
	ErrDuplicateMember    = errors.New("social: user is already a community member")
	ErrMemberNotFound     = errors.New("social: user is not a community member")
)

// Self-relations and duplicate relations are conflicts; wrapping keeps
// errors.Is(err, ErrConflict) true for both.
var (
	ErrSelfRelation      = fmt.Errorf("%w: relation targets the caller", ErrConflict)
	ErrDuplicateRelation = fmt.Errorf("%w: relation already present", ErrConflict)
)

// enemyError reports which user blocks the interaction. The display name is
// part of the message contract.
func enemyError(name string) error {
	return fmt.Errorf("%w: invalid operation, %s is your enemy", ErrEnemyRelation, name)
}
