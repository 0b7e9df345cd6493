package social

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"tribo.social/internal/ids"
)

// SystemSender is the fixed identity used for registry-generated recados,
// such as mutual-crush notifications.
const SystemSender = "cupid"

// Service defines every operation the registry exposes. The HTTP layer and
// the smoke client program against this.
type Service interface {
	Reset(ctx context.Context)
	Register(ctx context.Context, login, secret, name string) error
	Authenticate(ctx context.Context, login, secret string) (string, error)
	Attribute(ctx context.Context, login, field string) (string, error)
	EditProfile(ctx context.Context, token, field, value string) error

	AddFriend(ctx context.Context, token, target string) error
	IsFriend(ctx context.Context, login, other string) (bool, error)
	Friends(ctx context.Context, login string) (string, error)

	SendDirectMessage(ctx context.Context, token, target, text string) error
	ReadDirectMessage(ctx context.Context, token string) (string, error)

	CreateCommunity(ctx context.Context, token, name, description string) error
	CommunityDescription(ctx context.Context, name string) (string, error)
	CommunityOwner(ctx context.Context, name string) (string, error)
	CommunityMembers(ctx context.Context, name string) (string, error)
	Communities(ctx context.Context, login string) (string, error)
	JoinCommunity(ctx context.Context, token, name string) error
	Broadcast(ctx context.Context, token, community, text string) error
	ReadBroadcast(ctx context.Context, token string) (string, error)

	AddIdol(ctx context.Context, token, idol string) error
	IsFan(ctx context.Context, login, idol string) (bool, error)
	Fans(ctx context.Context, login string) (string, error)
	Idols(ctx context.Context, login string) (string, error)

	AddCrush(ctx context.Context, token, target string) error
	IsCrush(ctx context.Context, token, target string) (bool, error)
	Crushes(ctx context.Context, token string) (string, error)

	AddEnemy(ctx context.Context, token, target string) error
	Enemies(ctx context.Context, token string) (string, error)

	RemoveUser(ctx context.Context, token string) error

	Export(ctx context.Context) Snapshot
	Restore(ctx context.Context, snap Snapshot) error
}

// Registry owns every user, community and session and orchestrates all
// cross-user operations. One lock guards the whole aggregate: operations are
// short and single-writer discipline is the concurrency contract.
type Registry struct {
	mu          sync.RWMutex
	users       map[string]*User
	communities map[string]*Community
	sessions    map[string]string // session id -> login

	tokenSecret []byte
	now         func() time.Time
}

var _ Service = (*Registry)(nil)

// Option configures the Registry.
type Option func(*Registry)

// WithTokenSecret sets the HMAC secret used to sign session tokens. Without
// it a process-local random secret is generated, which is fine as long as
// tokens never need to survive a restart.
func WithTokenSecret(secret string) Option {
	return func(r *Registry) {
		if secret != "" {
			r.tokenSecret = []byte(secret)
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		users:       make(map[string]*User),
		communities: make(map[string]*Community),
		sessions:    make(map[string]string),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.tokenSecret) == 0 {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic("social: cannot seed session token secret: " + err.Error())
		}
		r.tokenSecret = secret
	}
	return r
}

// getUser returns a registered user or ErrUnknownUser. Callers hold the lock.
func (r *Registry) getUser(login string) (*User, error) {
	u, ok := r.users[login]
	if !ok {
		return nil, ErrUnknownUser
	}
	return u, nil
}

// resolveSession maps a bearer token to its user. Forged, stale and orphaned
// tokens all collapse to ErrUnknownUser; callers cannot distinguish a token
// that never existed from one whose owner was removed.
func (r *Registry) resolveSession(token string) (*User, string, error) {
	id, login, err := parseSessionToken(r.tokenSecret, token)
	if err != nil {
		return nil, "", ErrUnknownUser
	}
	if stored, ok := r.sessions[id]; !ok || stored != login {
		return nil, "", ErrUnknownUser
	}
	u, err := r.getUser(login)
	if err != nil {
		return nil, "", err
	}
	return u, id, nil
}

// Reset drops all users and communities. Session entries are left behind on
// purpose: they turn stale and fail resolution, matching the system's
// historical reset semantics.
func (r *Registry) Reset(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]*User)
	r.communities = make(map[string]*Community)
}

// Register creates a new user. The secret must differ from both the login
// and the display name.
func (r *Registry) Register(ctx context.Context, login, secret, name string) error {
	if login == "" {
		return fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	if secret == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[login]; ok {
		return ErrUserExists
	}
	if secret == login || secret == name {
		return fmt.Errorf("%w: the password must differ from the login and the name", ErrConflict)
	}
	r.users[login] = NewUser(login, secret, name)
	return nil
}

// Authenticate opens a session and returns its bearer token.
func (r *Registry) Authenticate(ctx context.Context, login, secret string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[login]
	if !ok || secret == "" || !u.CompareSecret(secret) {
		return "", ErrInvalidCredentials
	}
	id := ids.New()
	token, err := signSessionToken(r.tokenSecret, login, id, r.now())
	if err != nil {
		return "", err
	}
	r.sessions[id] = login
	return token, nil
}

// Attribute reads a profile field of any registered user.
func (r *Registry) Attribute(ctx context.Context, login, field string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, err := r.getUser(login)
	if err != nil {
		return "", err
	}
	return u.Attribute(field)
}

// EditProfile updates a profile field of the session's user.
func (r *Registry) EditProfile(ctx context.Context, token, field, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	u.EditProfile(field, value)
	return nil
}

// enmityBlocked rejects an interaction when either side declared the other
// an enemy. The message always names the target, whichever side declared it.
func enmityBlocked(actor, target *User) error {
	if actor.Relation(KindEnemy).Contains(target.login) || target.Relation(KindEnemy).Contains(actor.login) {
		return enemyError(target.Name())
	}
	return nil
}

// AddFriend either completes a friendship (when the target already invited
// the caller) or files a pending invitation with the target.
func (r *Registry) AddFriend(ctx context.Context, token, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	other, err := r.getUser(target)
	if err != nil {
		return err
	}
	if actor.Login() == target {
		return fmt.Errorf("%w: user cannot befriend themselves", ErrSelfRelation)
	}
	if err := enmityBlocked(actor, other); err != nil {
		return err
	}

	if actor.HasInvitationFrom(target) {
		if err := actor.AcceptFriend(target); err != nil {
			return err
		}
		return other.AcceptFriend(actor.Login())
	}
	return other.ReceiveInvitation(actor.Login())
}

// IsFriend reports whether two registered users are friends.
func (r *Registry) IsFriend(ctx context.Context, login, other string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, err := r.getUser(login)
	if err != nil {
		return false, err
	}
	if _, err := r.getUser(other); err != nil {
		return false, err
	}
	return u.IsFriend(other)
}

// Friends lists a user's friends in the {a,b,c} wire format.
func (r *Registry) Friends(ctx context.Context, login string) (string, error) {
	return r.relationList(login, KindFriend)
}

// SendDirectMessage queues a recado on the target's direct queue.
func (r *Registry) SendDirectMessage(ctx context.Context, token, target, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	other, err := r.getUser(target)
	if err != nil {
		return err
	}
	if actor == other {
		return fmt.Errorf("%w: user cannot send a recado to themselves", ErrSelfRelation)
	}
	if err := enmityBlocked(actor, other); err != nil {
		return err
	}
	other.EnqueueDirectMessage(text, actor.Login())
	actor.RecordRecipient(target)
	return nil
}

// ReadDirectMessage pops the session user's oldest recado.
func (r *Registry) ReadDirectMessage(ctx context.Context, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, _, err := r.resolveSession(token)
	if err != nil {
		return "", err
	}
	return u.DequeueDirectMessage()
}

// CreateCommunity registers a community owned by the session's user, who
// joins it immediately.
func (r *Registry) CreateCommunity(ctx context.Context, token, name, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	if _, ok := r.communities[name]; ok {
		return ErrCommunityExists
	}
	r.communities[name] = NewCommunity(actor.Login(), name, description)
	actor.JoinCommunity(name)
	return nil
}

func (r *Registry) getCommunity(name string) (*Community, error) {
	c, ok := r.communities[name]
	if !ok {
		return nil, ErrCommunityNotFound
	}
	return c, nil
}

// CommunityDescription returns a community's description.
func (r *Registry) CommunityDescription(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.getCommunity(name)
	if err != nil {
		return "", err
	}
	return c.Description(), nil
}

// CommunityOwner returns a community's owner login.
func (r *Registry) CommunityOwner(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.getCommunity(name)
	if err != nil {
		return "", err
	}
	return c.Owner(), nil
}

// CommunityMembers lists members in the {a,b,c} wire format.
func (r *Registry) CommunityMembers(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.getCommunity(name)
	if err != nil {
		return "", err
	}
	return FormatList(c.Members()), nil
}

// Communities lists the communities a user belongs to.
func (r *Registry) Communities(ctx context.Context, login string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, err := r.getUser(login)
	if err != nil {
		return "", err
	}
	return FormatList(u.Communities()), nil
}

// JoinCommunity adds the session's user to a community, updating both sides.
func (r *Registry) JoinCommunity(ctx context.Context, token, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	c, err := r.getCommunity(name)
	if err != nil {
		return err
	}
	if err := c.AddMember(actor.Login()); err != nil {
		return err
	}
	actor.JoinCommunity(name)
	return nil
}

// Broadcast queues a message on every current member's broadcast queue. The
// fan-out covers the membership snapshot at send time; later joins do not
// receive it.
func (r *Registry) Broadcast(ctx context.Context, token, community, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	c, err := r.getCommunity(community)
	if err != nil {
		return err
	}
	for _, member := range c.Members() {
		u, ok := r.users[member]
		if !ok {
			continue // already cleaned up mid-cascade
		}
		u.EnqueueBroadcast(text, actor.Login())
	}
	return nil
}

// ReadBroadcast pops the session user's oldest community message.
func (r *Registry) ReadBroadcast(ctx context.Context, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, _, err := r.resolveSession(token)
	if err != nil {
		return "", err
	}
	return u.DequeueBroadcast()
}

// AddIdol records admiration: the idol joins the caller's idol set and the
// caller joins the idol's fan set, both sides in one call.
func (r *Registry) AddIdol(ctx context.Context, token, idol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	other, err := r.getUser(idol)
	if err != nil {
		return err
	}
	if actor.Login() == idol {
		return fmt.Errorf("%w: user cannot be their own fan", ErrSelfRelation)
	}
	if err := enmityBlocked(actor, other); err != nil {
		return err
	}
	if err := actor.Relation(KindIdol).Add(idol); err != nil {
		return err
	}
	return other.Relation(KindFan).Add(actor.Login())
}

// IsFan reports whether login is a fan of idol.
func (r *Registry) IsFan(ctx context.Context, login, idol string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.getUser(login); err != nil {
		return false, err
	}
	other, err := r.getUser(idol)
	if err != nil {
		return false, err
	}
	return other.Relation(KindFan).Contains(login), nil
}

// Fans lists a user's fans in the {a,b,c} wire format.
func (r *Registry) Fans(ctx context.Context, login string) (string, error) {
	return r.relationList(login, KindFan)
}

// Idols lists a user's idols in the {a,b,c} wire format.
func (r *Registry) Idols(ctx context.Context, login string) (string, error) {
	return r.relationList(login, KindIdol)
}

// AddCrush records romantic interest. A mutual crush triggers one system
// recado to each side; because duplicate crush edges are rejected, the pair
// of notifications is generated exactly once.
func (r *Registry) AddCrush(ctx context.Context, token, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	other, err := r.getUser(target)
	if err != nil {
		return err
	}
	if err := enmityBlocked(actor, other); err != nil {
		return err
	}
	if err := actor.Relation(KindCrush).Add(target); err != nil {
		return err
	}
	if other.Relation(KindCrush).Contains(actor.Login()) {
		actor.EnqueueDirectMessage(fmt.Sprintf("%s is your crush too", other.Name()), SystemSender)
		other.EnqueueDirectMessage(fmt.Sprintf("%s is your crush too", actor.Name()), SystemSender)
	}
	return nil
}

// IsCrush reports whether the session's user has a crush on target.
func (r *Registry) IsCrush(ctx context.Context, token, target string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return false, err
	}
	if _, err := r.getUser(target); err != nil {
		return false, err
	}
	return actor.Relation(KindCrush).Contains(target), nil
}

// Crushes lists the session user's crushes in the {a,b,c} wire format.
func (r *Registry) Crushes(ctx context.Context, token string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return "", err
	}
	return FormatList(actor.Relation(KindCrush).All()), nil
}

// AddEnemy records enmity. The edge is structurally one-directional but is
// checked from both sides wherever enmity gates an interaction.
func (r *Registry) AddEnemy(ctx context.Context, token, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	if _, err := r.getUser(target); err != nil {
		return err
	}
	return actor.Relation(KindEnemy).Add(target)
}

// Enemies lists the session user's declared enemies.
func (r *Registry) Enemies(ctx context.Context, token string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return "", err
	}
	return FormatList(actor.Relation(KindEnemy).All()), nil
}

// RemoveUser deletes the session's user and cascades: every user the
// departing login ever touched is purged of references, owned communities
// are dissolved, memberships dropped and the user's sessions revoked. Each
// cleanup target is handled independently; a target that already vanished is
// skipped, never an error.
func (r *Registry) RemoveUser(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, _, err := r.resolveSession(token)
	if err != nil {
		return err
	}
	login := actor.Login()

	for _, other := range r.touchedBy(actor) {
		if u, ok := r.users[other]; ok {
			u.PurgeReferencesTo(login)
		}
	}

	for _, name := range actor.Communities() {
		c, ok := r.communities[name]
		if !ok {
			continue
		}
		if c.Owner() == login {
			delete(r.communities, name)
			for _, member := range c.Members() {
				if u, ok := r.users[member]; ok {
					u.LeaveCommunity(name)
				}
			}
		} else if c.HasMember(login) {
			_ = c.RemoveMember(login)
		}
	}

	delete(r.users, login)
	for id, owner := range r.sessions {
		if owner == login {
			delete(r.sessions, id)
		}
	}
	return nil
}

// touchedBy collects every login the user is entangled with: all six
// relation sets, everyone the user messaged, and everyone who left a message
// in either of the user's queues.
func (r *Registry) touchedBy(u *User) []string {
	seen := newOrderedSet()
	for _, k := range Kinds {
		for _, other := range u.Relation(k).All() {
			seen.add(other)
		}
	}
	for _, other := range u.Recipients() {
		seen.add(other)
	}
	for _, m := range u.direct {
		seen.add(m.Sender)
	}
	for _, m := range u.broadcasts {
		seen.add(m.Sender)
	}
	seen.remove(u.Login())
	return seen.all()
}

func (r *Registry) relationList(login string, kind RelationKind) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, err := r.getUser(login)
	if err != nil {
		return "", err
	}
	return FormatList(u.Relation(kind).All()), nil
}
