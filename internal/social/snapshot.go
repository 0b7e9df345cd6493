package social

import (
	"context"
	"fmt"
	"sort"
)

// Snapshot is the explicit persistence schema: ordered user records and
// ordered community records, decoupled from the in-memory representation.
// Sessions are process-scoped and are not part of it.
type Snapshot struct {
	Users       []UserRecord      `json:"users"`
	Communities []CommunityRecord `json:"communities"`
}

// UserRecord is one user flattened for storage. Relation slices and queues
// keep their insertion order.
type UserRecord struct {
	Login      string                    `json:"login"`
	Name       string                    `json:"name"`
	Secret     string                    `json:"secret"`
	Attributes map[string]string         `json:"attributes,omitempty"`
	Relations  map[RelationKind][]string `json:"relations,omitempty"`
	Direct     []Message                 `json:"direct,omitempty"`
	Broadcasts []Message                 `json:"broadcasts,omitempty"`
	Recipients []string                  `json:"recipients,omitempty"`
}

// CommunityRecord is one community flattened for storage.
type CommunityRecord struct {
	Name        string   `json:"name"`
	Owner       string   `json:"owner"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

// Export captures the registry state, users ordered by login and communities
// by name so consecutive saves of the same state are byte-identical.
func (r *Registry) Export(ctx context.Context) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Users:       make([]UserRecord, 0, len(r.users)),
		Communities: make([]CommunityRecord, 0, len(r.communities)),
	}
	for _, u := range r.users {
		rec := UserRecord{
			Login:      u.login,
			Name:       u.name,
			Secret:     u.secret,
			Relations:  make(map[RelationKind][]string),
			Direct:     append([]Message(nil), u.direct...),
			Broadcasts: append([]Message(nil), u.broadcasts...),
			Recipients: u.sentTo.all(),
		}
		if len(u.attrs) > 0 {
			rec.Attributes = make(map[string]string, len(u.attrs))
			for k, v := range u.attrs {
				rec.Attributes[k] = v
			}
		}
		for _, k := range Kinds {
			if set := u.relations[k]; set.Len() > 0 {
				rec.Relations[k] = set.All()
			}
		}
		snap.Users = append(snap.Users, rec)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].Login < snap.Users[j].Login })

	for _, c := range r.communities {
		snap.Communities = append(snap.Communities, CommunityRecord{
			Name:        c.name,
			Owner:       c.owner,
			Description: c.description,
			Members:     c.Members(),
		})
	}
	sort.Slice(snap.Communities, func(i, j int) bool { return snap.Communities[i].Name < snap.Communities[j].Name })
	return snap
}

// Restore replaces the registry state with the snapshot's. Existing sessions
// stay in the table; ones pointing at logins absent from the snapshot simply
// fail resolution afterwards. Membership consistency between user records
// and community records is the snapshot producer's responsibility; Restore
// rebuilds the user side from community membership so the two cannot drift.
func (r *Registry) Restore(ctx context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make(map[string]*User, len(snap.Users))
	for _, rec := range snap.Users {
		if rec.Login == "" {
			return fmt.Errorf("%w: snapshot user record without login", ErrInvalidInput)
		}
		if _, ok := users[rec.Login]; ok {
			return fmt.Errorf("%w: duplicate snapshot login %q", ErrInvalidInput, rec.Login)
		}
		u := NewUser(rec.Login, rec.Secret, rec.Name)
		for k, v := range rec.Attributes {
			u.attrs[k] = v
		}
		for _, k := range Kinds {
			u.relations[k].load(rec.Relations[k])
		}
		u.direct = append(u.direct, rec.Direct...)
		u.broadcasts = append(u.broadcasts, rec.Broadcasts...)
		for _, login := range rec.Recipients {
			u.sentTo.add(login)
		}
		users[rec.Login] = u
	}

	communities := make(map[string]*Community, len(snap.Communities))
	for _, rec := range snap.Communities {
		if rec.Name == "" || rec.Owner == "" {
			return fmt.Errorf("%w: snapshot community record incomplete", ErrInvalidInput)
		}
		if _, ok := communities[rec.Name]; ok {
			return fmt.Errorf("%w: duplicate snapshot community %q", ErrInvalidInput, rec.Name)
		}
		c := NewCommunity(rec.Owner, rec.Name, rec.Description)
		for _, member := range rec.Members {
			c.members.add(member)
			if u, ok := users[member]; ok {
				u.JoinCommunity(rec.Name)
			}
		}
		communities[rec.Name] = c
	}

	r.users = users
	r.communities = communities
	return nil
}

// load bulk-inserts targets without admission checks; snapshot restore only.
func (s *RelationSet) load(targets []string) {
	for _, t := range targets {
		if _, ok := s.present[t]; ok {
			continue
		}
		s.present[t] = struct{}{}
		s.order = append(s.order, t)
	}
}
