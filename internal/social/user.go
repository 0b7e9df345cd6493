package social

import "fmt"

// Message is one queued communication: who sent it and what it says.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// User aggregates one identity: profile, relation sets, the two message
// queues and community memberships. Users never reference the registry; every
// cross-user rule lives one level up.
type User struct {
	login  string
	name   string
	secret string
	attrs  map[string]string

	relations map[RelationKind]*RelationSet

	direct     []Message // recados, FIFO
	broadcasts []Message // community messages, FIFO

	communities *orderedSet
	sentTo      *orderedSet // logins this user has sent recados to
}

// NewUser creates a user with the given immutable login.
func NewUser(login, secret, name string) *User {
	u := &User{
		login:       login,
		name:        name,
		secret:      secret,
		attrs:       make(map[string]string),
		relations:   make(map[RelationKind]*RelationSet, len(Kinds)),
		communities: newOrderedSet(),
		sentTo:      newOrderedSet(),
	}
	for _, k := range Kinds {
		u.relations[k] = NewRelationSet(login, k)
	}
	return u
}

func (u *User) Login() string { return u.login }
func (u *User) Name() string  { return u.name }

// CompareSecret checks the candidate against the stored credential. Plain
// equality is the contract; secrets round-trip through snapshots verbatim.
func (u *User) CompareSecret(candidate string) bool {
	return candidate == u.secret
}

// Attribute returns a profile field. "name" and "login" are built-in and
// served from the profile itself, everything else from the attribute map.
func (u *User) Attribute(field string) (string, error) {
	switch field {
	case "name":
		return u.name, nil
	case "login":
		return u.login, nil
	}
	v, ok := u.attrs[field]
	if !ok {
		return "", ErrMissingAttribute
	}
	return v, nil
}

// EditProfile updates a profile field. The field is matched against the
// current display name and secret values, not against literal field names;
// this mirrors long-standing system behavior and is kept deliberately (see
// DESIGN.md, open questions).
func (u *User) EditProfile(field, value string) {
	switch field {
	case u.name:
		u.name = value
	case u.secret:
		u.secret = value
	default:
		u.attrs[field] = value
	}
}

// Relation exposes one of the six relation sets.
func (u *User) Relation(kind RelationKind) *RelationSet {
	return u.relations[kind]
}

// ReceiveInvitation records a pending friend request from another user.
func (u *User) ReceiveInvitation(from string) error {
	if u.relations[KindFriend].Contains(from) {
		return ErrDuplicateRelation
	}
	return u.relations[KindInvite].Add(from)
}

// HasInvitationFrom reports whether a request from the given login is pending.
func (u *User) HasInvitationFrom(from string) bool {
	return u.relations[KindInvite].Contains(from)
}

// AcceptFriend promotes a pending invitation into a friendship edge. The
// registry writes the reverse edge; a single side is never symmetric alone.
func (u *User) AcceptFriend(from string) error {
	u.relations[KindInvite].Remove(from)
	return u.relations[KindFriend].Add(from)
}

// IsFriend reports friendship with another login. Asking about oneself is a
// conflict, not a boolean.
func (u *User) IsFriend(other string) (bool, error) {
	if other == u.login {
		return false, fmt.Errorf("%w: user cannot be their own friend", ErrSelfRelation)
	}
	return u.relations[KindFriend].Contains(other), nil
}

// EnqueueDirectMessage appends a recado to the direct queue.
func (u *User) EnqueueDirectMessage(text, sender string) {
	u.direct = append(u.direct, Message{Sender: sender, Text: text})
}

// DequeueDirectMessage pops the oldest recado.
func (u *User) DequeueDirectMessage() (string, error) {
	if len(u.direct) == 0 {
		return "", ErrNoDirectMessages
	}
	m := u.direct[0]
	u.direct = u.direct[1:]
	return m.Text, nil
}

// EnqueueBroadcast appends a community message to the broadcast queue.
func (u *User) EnqueueBroadcast(text, sender string) {
	u.broadcasts = append(u.broadcasts, Message{Sender: sender, Text: text})
}

// DequeueBroadcast pops the oldest community message. Broadcast emptiness is
// a distinct failure from direct-message emptiness.
func (u *User) DequeueBroadcast() (string, error) {
	if len(u.broadcasts) == 0 {
		return "", ErrNoBroadcasts
	}
	m := u.broadcasts[0]
	u.broadcasts = u.broadcasts[1:]
	return m.Text, nil
}

// RecordRecipient remembers that this user sent a recado to the given login.
// Bookkeeping only; the deletion cascade walks it.
func (u *User) RecordRecipient(login string) {
	u.sentTo.add(login)
}

// PurgeReferencesTo erases every trace of another login: all six relation
// sets, queued messages the login sent, and recipient bookkeeping. Used only
// during cascading deletion.
func (u *User) PurgeReferencesTo(other string) {
	for _, k := range Kinds {
		u.relations[k].Remove(other)
	}
	u.direct = dropFromSender(u.direct, other)
	u.broadcasts = dropFromSender(u.broadcasts, other)
	u.sentTo.remove(other)
}

// JoinCommunity records membership. The registry validates existence first.
func (u *User) JoinCommunity(name string) { u.communities.add(name) }

// LeaveCommunity forgets membership; absent names are ignored.
func (u *User) LeaveCommunity(name string) { u.communities.remove(name) }

// Communities returns community names in join order.
func (u *User) Communities() []string { return u.communities.all() }

// Recipients returns the logins this user has sent recados to.
func (u *User) Recipients() []string { return u.sentTo.all() }

func dropFromSender(queue []Message, sender string) []Message {
	out := queue[:0]
	for _, m := range queue {
		if m.Sender != sender {
			out = append(out, m)
		}
	}
	return out
}

// orderedSet is a string set that remembers insertion order.
type orderedSet struct {
	order   []string
	present map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{present: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.present[v]; ok {
		return
	}
	s.present[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *orderedSet) remove(v string) {
	if _, ok := s.present[v]; !ok {
		return
	}
	delete(s.present, v)
	for i, e := range s.order {
		if e == v {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *orderedSet) contains(v string) bool {
	_, ok := s.present[v]
	return ok
}

func (s *orderedSet) all() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
