// Package pg persists snapshots in Postgres, normalized across a handful of
// tables and rewritten in one transaction per save.
package pg

import (
	"context"
	"database/sql"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tribo.social/internal/social"
	"tribo.social/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; tests inject sqlmock through it.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const (
	queueDirect    = "direct"
	queueBroadcast = "broadcast"
)

// Save rewrites every table from the snapshot inside a single transaction.
// Deletion order follows foreign keys, children first.
func (s *Store) Save(ctx context.Context, snap social.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`delete from community_members`,
		`delete from communities`,
		`delete from user_messages`,
		`delete from user_recipients`,
		`delete from user_relations`,
		`delete from user_attributes`,
		`delete from users`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, u := range snap.Users {
		if _, err := tx.ExecContext(ctx,
			`insert into users(login, name, secret) values($1,$2,$3)`,
			u.Login, u.Name, u.Secret); err != nil {
			return err
		}
		attrKeys := make([]string, 0, len(u.Attributes))
		for k := range u.Attributes {
			attrKeys = append(attrKeys, k)
		}
		sort.Strings(attrKeys)
		for _, k := range attrKeys {
			if _, err := tx.ExecContext(ctx,
				`insert into user_attributes(login, key, value) values($1,$2,$3)`,
				u.Login, k, u.Attributes[k]); err != nil {
				return err
			}
		}
		for _, kind := range social.Kinds {
			for ord, target := range u.Relations[kind] {
				if _, err := tx.ExecContext(ctx,
					`insert into user_relations(login, kind, ord, target) values($1,$2,$3,$4)`,
					u.Login, string(kind), ord, target); err != nil {
					return err
				}
			}
		}
		if err := insertQueue(ctx, tx, u.Login, queueDirect, u.Direct); err != nil {
			return err
		}
		if err := insertQueue(ctx, tx, u.Login, queueBroadcast, u.Broadcasts); err != nil {
			return err
		}
		for _, recipient := range u.Recipients {
			if _, err := tx.ExecContext(ctx,
				`insert into user_recipients(login, recipient) values($1,$2)`,
				u.Login, recipient); err != nil {
				return err
			}
		}
	}

	for _, c := range snap.Communities {
		if _, err := tx.ExecContext(ctx,
			`insert into communities(name, owner, description) values($1,$2,$3)`,
			c.Name, c.Owner, c.Description); err != nil {
			return err
		}
		for ord, member := range c.Members {
			if _, err := tx.ExecContext(ctx,
				`insert into community_members(community, ord, login) values($1,$2,$3)`,
				c.Name, ord, member); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func insertQueue(ctx context.Context, tx *sql.Tx, login, queue string, msgs []social.Message) error {
	for ord, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`insert into user_messages(login, queue, ord, sender, body) values($1,$2,$3,$4,$5)`,
			login, queue, ord, m.Sender, m.Text); err != nil {
			return err
		}
	}
	return nil
}

// Load assembles a snapshot from the tables, preserving login/name ordering
// and per-row insertion order.
func (s *Store) Load(ctx context.Context) (social.Snapshot, error) {
	var snap social.Snapshot
	byLogin := map[string]int{}

	rows, err := s.db.QueryContext(ctx, `select login, name, secret from users order by login`)
	if err != nil {
		return social.Snapshot{}, err
	}
	for rows.Next() {
		var rec social.UserRecord
		if err := rows.Scan(&rec.Login, &rec.Name, &rec.Secret); err != nil {
			rows.Close()
			return social.Snapshot{}, err
		}
		byLogin[rec.Login] = len(snap.Users)
		snap.Users = append(snap.Users, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return social.Snapshot{}, err
	}

	if err := s.loadAttributes(ctx, snap.Users, byLogin); err != nil {
		return social.Snapshot{}, err
	}
	if err := s.loadRelations(ctx, snap.Users, byLogin); err != nil {
		return social.Snapshot{}, err
	}
	if err := s.loadMessages(ctx, snap.Users, byLogin); err != nil {
		return social.Snapshot{}, err
	}
	if err := s.loadRecipients(ctx, snap.Users, byLogin); err != nil {
		return social.Snapshot{}, err
	}

	rows, err = s.db.QueryContext(ctx, `select name, owner, description from communities order by name`)
	if err != nil {
		return social.Snapshot{}, err
	}
	byName := map[string]int{}
	for rows.Next() {
		var rec social.CommunityRecord
		if err := rows.Scan(&rec.Name, &rec.Owner, &rec.Description); err != nil {
			rows.Close()
			return social.Snapshot{}, err
		}
		byName[rec.Name] = len(snap.Communities)
		snap.Communities = append(snap.Communities, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return social.Snapshot{}, err
	}

	rows, err = s.db.QueryContext(ctx,
		`select community, login from community_members order by community, ord`)
	if err != nil {
		return social.Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var community, login string
		if err := rows.Scan(&community, &login); err != nil {
			return social.Snapshot{}, err
		}
		if i, ok := byName[community]; ok {
			snap.Communities[i].Members = append(snap.Communities[i].Members, login)
		}
	}
	return snap, rows.Err()
}

func (s *Store) loadAttributes(ctx context.Context, users []social.UserRecord, byLogin map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `select login, key, value from user_attributes`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var login, key, value string
		if err := rows.Scan(&login, &key, &value); err != nil {
			return err
		}
		i, ok := byLogin[login]
		if !ok {
			continue
		}
		if users[i].Attributes == nil {
			users[i].Attributes = map[string]string{}
		}
		users[i].Attributes[key] = value
	}
	return rows.Err()
}

func (s *Store) loadRelations(ctx context.Context, users []social.UserRecord, byLogin map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`select login, kind, target from user_relations order by login, kind, ord`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var login, kind, target string
		if err := rows.Scan(&login, &kind, &target); err != nil {
			return err
		}
		i, ok := byLogin[login]
		if !ok {
			continue
		}
		if users[i].Relations == nil {
			users[i].Relations = map[social.RelationKind][]string{}
		}
		k := social.RelationKind(kind)
		users[i].Relations[k] = append(users[i].Relations[k], target)
	}
	return rows.Err()
}

func (s *Store) loadMessages(ctx context.Context, users []social.UserRecord, byLogin map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`select login, queue, sender, body from user_messages order by login, queue, ord`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var login, queue, sender, body string
		if err := rows.Scan(&login, &queue, &sender, &body); err != nil {
			return err
		}
		i, ok := byLogin[login]
		if !ok {
			continue
		}
		msg := social.Message{Sender: sender, Text: body}
		switch queue {
		case queueDirect:
			users[i].Direct = append(users[i].Direct, msg)
		case queueBroadcast:
			users[i].Broadcasts = append(users[i].Broadcasts, msg)
		}
	}
	return rows.Err()
}

func (s *Store) loadRecipients(ctx context.Context, users []social.UserRecord, byLogin map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`select login, recipient from user_recipients order by login, recipient`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var login, recipient string
		if err := rows.Scan(&login, &recipient); err != nil {
			return err
		}
		if i, ok := byLogin[login]; ok {
			users[i].Recipients = append(users[i].Recipients, recipient)
		}
	}
	return rows.Err()
}
