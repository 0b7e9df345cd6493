package social

import "fmt"

// RelationKind identifies one of the fixed relation types a user holds.
type RelationKind string

const (
	KindInvite RelationKind = "invite"
	KindFriend RelationKind = "friend"
	KindIdol   RelationKind = "idol"
	KindFan    RelationKind = "fan"
	KindCrush  RelationKind = "crush"
	KindEnemy  RelationKind = "enemy"
)

// Kinds lists every relation kind in a stable order. Snapshot encoding and
// the deletion cascade iterate this.
var Kinds = []RelationKind{KindInvite, KindFriend, KindIdol, KindFan, KindCrush, KindEnemy}

// relationPolicy is the admission rule set of one relation kind. The fan kind
// is deliberately lax: adds are idempotent and self checks happen one level
// up, on the idol side of the pair-write.
type relationPolicy struct {
	forbidSelf      bool
	forbidDuplicate bool
	label           string
}

var policies = map[RelationKind]relationPolicy{
	KindInvite: {forbidSelf: true, forbidDuplicate: true, label: "pending friend invitation"},
	KindFriend: {forbidSelf: true, forbidDuplicate: true, label: "friend"},
	KindIdol:   {forbidSelf: true, forbidDuplicate: true, label: "idol"},
	KindFan:    {forbidSelf: false, forbidDuplicate: false, label: "fan"},
	KindCrush:  {forbidSelf: true, forbidDuplicate: true, label: "crush"},
	KindEnemy:  {forbidSelf: true, forbidDuplicate: true, label: "enemy"},
}

// RelationSet holds one user's outgoing edges of a single kind and enforces
// that kind's admission policy. Insertion order is preserved; it is part of
// the list wire format.
type RelationSet struct {
	owner   string
	kind    RelationKind
	order   []string
	present map[string]struct{}
}

// NewRelationSet creates an empty set owned by the given login.
func NewRelationSet(owner string, kind RelationKind) *RelationSet {
	return &RelationSet{
		owner:   owner,
		kind:    kind,
		present: make(map[string]struct{}),
	}
}

// Add admits target under the set's policy.
func (s *RelationSet) Add(target string) error {
	p := policies[s.kind]
	if p.forbidSelf && target == s.owner {
		return fmt.Errorf("%w: user cannot be their own %s", ErrSelfRelation, p.label)
	}
	if _, ok := s.present[target]; ok {
		if !p.forbidDuplicate {
			return nil
		}
		return fmt.Errorf("%w: user already added as %s", ErrDuplicateRelation, p.label)
	}
	s.present[target] = struct{}{}
	s.order = append(s.order, target)
	return nil
}

// Remove drops target if present. Removing an absent login is a no-op.
func (s *RelationSet) Remove(target string) {
	if _, ok := s.present[target]; !ok {
		return
	}
	delete(s.present, target)
	for i, v := range s.order {
		if v == target {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Contains reports whether target is in the set.
func (s *RelationSet) Contains(target string) bool {
	_, ok := s.present[target]
	return ok
}

// All returns the member logins in insertion order. The slice is a copy.
func (s *RelationSet) All() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of members.
func (s *RelationSet) Len() int { return len(s.order) }
