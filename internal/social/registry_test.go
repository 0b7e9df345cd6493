package social

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func register(t *testing.T, r *Registry, login, secret, name string) {
	t.Helper()
	if err := r.Register(context.Background(), login, secret, name); err != nil {
		t.Fatalf("register %s: %v", login, err)
	}
}

func login(t *testing.T, r *Registry, login, secret string) string {
	t.Helper()
	token, err := r.Authenticate(context.Background(), login, secret)
	if err != nil {
		t.Fatalf("authenticate %s: %v", login, err)
	}
	return token
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, "", "x", "Ana"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty login: %v", err)
	}
	if err := r.Register(ctx, "ana", "", "Ana"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty secret: %v", err)
	}
	if err := r.Register(ctx, "ana", "x", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty name: %v", err)
	}
	if err := r.Register(ctx, "ana", "ana", "Ana"); !errors.Is(err, ErrConflict) {
		t.Fatalf("secret equal to login: %v", err)
	}
	if err := r.Register(ctx, "ana", "Ana", "Ana"); !errors.Is(err, ErrConflict) {
		t.Fatalf("secret equal to name: %v", err)
	}

	register(t, r, "ana", "x", "Ana")
	if err := r.Register(ctx, "ana", "other", "Other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("reused login: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")

	if _, err := r.Authenticate(ctx, "ghost", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown login: %v", err)
	}
	if _, err := r.Authenticate(ctx, "ana", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty secret: %v", err)
	}
	if _, err := r.Authenticate(ctx, "ana", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong secret: %v", err)
	}

	t1 := login(t, r, "ana", "x")
	t2 := login(t, r, "ana", "x")
	if t1 == t2 {
		t.Fatal("two sessions produced the same token")
	}
	if err := r.EditProfile(ctx, t1, "city", "Maceio"); err != nil {
		t.Fatalf("first session unusable: %v", err)
	}
	if err := r.EditProfile(ctx, t2, "city", "Recife"); err != nil {
		t.Fatalf("second session unusable: %v", err)
	}
}

func TestForgedTokenFailsResolution(t *testing.T) {
	r := NewRegistry(WithTokenSecret("registry-a"))
	other := NewRegistry(WithTokenSecret("registry-b"))
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, other, "ana", "x", "Ana")

	foreign := login(t, other, "ana", "x")
	if err := r.EditProfile(ctx, foreign, "city", "Maceio"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("foreign token accepted: %v", err)
	}
	if err := r.EditProfile(ctx, "not-a-token", "city", "Maceio"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("garbage token accepted: %v", err)
	}
}

func TestResetLeavesStaleSessions(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	token := login(t, r, "ana", "x")

	r.Reset(ctx)
	if err := r.EditProfile(ctx, token, "city", "Maceio"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("stale session should fail lookups, got %v", err)
	}

	// The login is free again after reset.
	register(t, r, "ana", "x", "Ana")
}

func TestFriendshipBecomesSymmetric(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, r, "bia", "y", "Bia")
	anaTok := login(t, r, "ana", "x")
	biaTok := login(t, r, "bia", "y")

	if err := r.AddFriend(ctx, anaTok, "bia"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if ok, _ := r.IsFriend(ctx, "ana", "bia"); ok {
		t.Fatal("pending invitation must not count as friendship")
	}
	if err := r.AddFriend(ctx, anaTok, "bia"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate request should conflict, got %v", err)
	}

	if err := r.AddFriend(ctx, biaTok, "ana"); err != nil {
		t.Fatalf("reciprocate: %v", err)
	}
	for _, pair := range [][2]string{{"ana", "bia"}, {"bia", "ana"}} {
		if ok, err := r.IsFriend(ctx, pair[0], pair[1]); err != nil || !ok {
			t.Fatalf("friendship not symmetric (%s->%s): %v", pair[0], pair[1], err)
		}
	}
	if got, _ := r.Friends(ctx, "ana"); got != "{bia}" {
		t.Fatalf("unexpected friends list: %s", got)
	}

	if err := r.AddFriend(ctx, anaTok, "ana"); !errors.Is(err, ErrSelfRelation) {
		t.Fatalf("self friendship: %v", err)
	}
	if err := r.AddFriend(ctx, anaTok, "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("unknown target: %v", err)
	}
}

func TestEnmityBlocksBothDirections(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, r, "bia", "y", "Bia")
	anaTok := login(t, r, "ana", "x")
	biaTok := login(t, r, "bia", "y")

	if err := r.AddEnemy(ctx, anaTok, "bia"); err != nil {
		t.Fatalf("declare enemy: %v", err)
	}
	if err := r.AddEnemy(ctx, anaTok, "bia"); !errors.Is(err, ErrDuplicateRelation) {
		t.Fatalf("duplicate enemy: %v", err)
	}

	// Declared by ana only, but blocking is checked from both sides.
	if err := r.SendDirectMessage(ctx, anaTok, "bia", "hi"); !errors.Is(err, ErrEnemyRelation) {
		t.Fatalf("ana->bia should be blocked: %v", err)
	}
	if err := r.SendDirectMessage(ctx, biaTok, "ana", "hi"); !errors.Is(err, ErrEnemyRelation) {
		t.Fatalf("bia->ana should be blocked: %v", err)
	}
	if err := r.AddFriend(ctx, biaTok, "ana"); !errors.Is(err, ErrEnemyRelation) {
		t.Fatalf("friend request should be blocked: %v", err)
	}
	if err := r.AddIdol(ctx, biaTok, "ana"); !errors.Is(err, ErrEnemyRelation) {
		t.Fatalf("idol should be blocked: %v", err)
	}
	if err := r.AddCrush(ctx, biaTok, "ana"); !errors.Is(err, ErrEnemyRelation) {
		t.Fatalf("crush should be blocked: %v", err)
	}
}

func TestDirectMessages(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, r, "bia", "y", "Bia")
	anaTok := login(t, r, "ana", "x")
	biaTok := login(t, r, "bia", "y")

	if err := r.SendDirectMessage(ctx, anaTok, "ana", "hi me"); !errors.Is(err, ErrSelfRelation) {
		t.Fatalf("self recado: %v", err)
	}
	if err := r.SendDirectMessage(ctx, anaTok, "bia", "oi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := r.SendDirectMessage(ctx, anaTok, "bia", "tudo bem?"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got, err := r.ReadDirectMessage(ctx, biaTok); err != nil || got != "oi" {
		t.Fatalf("read #1: %q, %v", got, err)
	}
	if got, err := r.ReadDirectMessage(ctx, biaTok); err != nil || got != "tudo bem?" {
		t.Fatalf("read #2: %q, %v", got, err)
	}
	if _, err := r.ReadDirectMessage(ctx, biaTok); !errors.Is(err, ErrNoDirectMessages) {
		t.Fatalf("drained queue: %v", err)
	}
}

func TestIdolsAndFans(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, r, "bia", "y", "Bia")
	register(t, r, "caio", "z", "Caio")
	anaTok := login(t, r, "ana", "x")
	caioTok := login(t, r, "caio", "z")

	if err := r.AddIdol(ctx, anaTok, "ana"); !errors.Is(err, ErrSelfRelation) {
		t.Fatalf("self idol: %v", err)
	}
	if err := r.AddIdol(ctx, anaTok, "bia"); err != nil {
		t.Fatalf("add idol: %v", err)
	}
	if err := r.AddIdol(ctx, caioTok, "bia"); err != nil {
		t.Fatalf("add idol: %v", err)
	}
	if err := r.AddIdol(ctx, anaTok, "bia"); !errors.Is(err, ErrDuplicateRelation) {
		t.Fatalf("duplicate idol: %v", err)
	}

	if ok, err := r.IsFan(ctx, "ana", "bia"); err != nil || !ok {
		t.Fatalf("ana should be a fan of bia: %v", err)
	}
	if ok, _ := r.IsFan(ctx, "bia", "ana"); ok {
		t.Fatal("fan relation is not symmetric")
	}
	if got, _ := r.Fans(ctx, "bia"); got != "{ana,caio}" {
		t.Fatalf("unexpected fans: %s", got)
	}
	if got, _ := r.Idols(ctx, "ana"); got != "{bia}" {
		t.Fatalf("unexpected idols: %s", got)
	}
}

func TestMutualCrushNotifiesExactlyOnce(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, r, "bia", "y", "Bia")
	anaTok := login(t, r, "ana", "x")
	biaTok := login(t, r, "bia", "y")

	if err := r.AddCrush(ctx, anaTok, "bia"); err != nil {
		t.Fatalf("first crush: %v", err)
	}
	if _, err := r.ReadDirectMessage(ctx, anaTok); !errors.Is(err, ErrNoDirectMessages) {
		t.Fatal("one-directional crush must not notify")
	}

	if err := r.AddCrush(ctx, biaTok, "ana"); err != nil {
		t.Fatalf("reciprocal crush: %v", err)
	}
	if got, err := r.ReadDirectMessage(ctx, anaTok); err != nil || got != "Bia is your crush too" {
		t.Fatalf("ana's note: %q, %v", got, err)
	}
	if got, err := r.ReadDirectMessage(ctx, biaTok); err != nil || got != "Ana is your crush too" {
		t.Fatalf("bia's note: %q, %v", got, err)
	}

	// Re-confirming an existing edge fails and must not notify again.
	if err := r.AddCrush(ctx, anaTok, "bia"); !errors.Is(err, ErrDuplicateRelation) {
		t.Fatalf("duplicate crush: %v", err)
	}
	if _, err := r.ReadDirectMessage(ctx, anaTok); !errors.Is(err, ErrNoDirectMessages) {
		t.Fatal("duplicate crush produced a second notification")
	}

	if ok, err := r.IsCrush(ctx, anaTok, "bia"); err != nil || !ok {
		t.Fatalf("IsCrush: %v", err)
	}
	if got, _ := r.Crushes(ctx, anaTok); got != "{bia}" {
		t.Fatalf("unexpected crushes: %s", got)
	}
}

func TestCommunitiesAndBroadcast(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, r, "bia", "y", "Bia")
	register(t, r, "caio", "z", "Caio")
	anaTok := login(t, r, "ana", "x")
	biaTok := login(t, r, "bia", "y")
	caioTok := login(t, r, "caio", "z")

	if err := r.CreateCommunity(ctx, anaTok, "gophers", "Go talk"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.CreateCommunity(ctx, biaTok, "gophers", "dup"); !errors.Is(err, ErrCommunityExists) {
		t.Fatalf("duplicate community: %v", err)
	}
	if _, err := r.CommunityDescription(ctx, "nope"); !errors.Is(err, ErrCommunityNotFound) {
		t.Fatalf("missing community: %v", err)
	}
	if desc, _ := r.CommunityDescription(ctx, "gophers"); desc != "Go talk" {
		t.Fatalf("description: %q", desc)
	}
	if owner, _ := r.CommunityOwner(ctx, "gophers"); owner != "ana" {
		t.Fatalf("owner: %q", owner)
	}

	if err := r.JoinCommunity(ctx, biaTok, "gophers"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := r.JoinCommunity(ctx, biaTok, "gophers"); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("re-join: %v", err)
	}
	if got, _ := r.CommunityMembers(ctx, "gophers"); got != "{ana,bia}" {
		t.Fatalf("members: %s", got)
	}
	if got, _ := r.Communities(ctx, "bia"); got != "{gophers}" {
		t.Fatalf("bia's communities: %s", got)
	}

	// Fan-out hits the membership snapshot at send time: caio joins after.
	if err := r.Broadcast(ctx, anaTok, "gophers", "meetup friday"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := r.JoinCommunity(ctx, caioTok, "gophers"); err != nil {
		t.Fatalf("late join: %v", err)
	}
	if got, err := r.ReadBroadcast(ctx, anaTok); err != nil || got != "meetup friday" {
		t.Fatalf("sender is a member and receives too: %q, %v", got, err)
	}
	if got, err := r.ReadBroadcast(ctx, biaTok); err != nil || got != "meetup friday" {
		t.Fatalf("bia: %q, %v", got, err)
	}
	if _, err := r.ReadBroadcast(ctx, caioTok); !errors.Is(err, ErrNoBroadcasts) {
		t.Fatal("late joiner must not receive earlier broadcasts")
	}
}

func TestRemoveUserCascadeIsTotal(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, r, "bia", "y", "Bia")
	register(t, r, "caio", "z", "Caio")
	anaTok := login(t, r, "ana", "x")
	biaTok := login(t, r, "bia", "y")
	caioTok := login(t, r, "caio", "z")

	// Entangle bia with everyone: friendship with ana, idol caio, a recado
	// to caio (who never relates back), and two communities, one owned.
	if err := r.AddFriend(ctx, anaTok, "bia"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddFriend(ctx, biaTok, "ana"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddIdol(ctx, biaTok, "caio"); err != nil {
		t.Fatal(err)
	}
	if err := r.SendDirectMessage(ctx, biaTok, "caio", "oi caio"); err != nil {
		t.Fatal(err)
	}
	if err := r.CreateCommunity(ctx, biaTok, "bia-fans", "all about bia"); err != nil {
		t.Fatal(err)
	}
	if err := r.JoinCommunity(ctx, anaTok, "bia-fans"); err != nil {
		t.Fatal(err)
	}
	if err := r.CreateCommunity(ctx, caioTok, "caiostans", "caio things"); err != nil {
		t.Fatal(err)
	}
	if err := r.JoinCommunity(ctx, biaTok, "caiostans"); err != nil {
		t.Fatal(err)
	}

	if err := r.RemoveUser(ctx, biaTok); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got, _ := r.Friends(ctx, "ana"); got != "{}" {
		t.Fatalf("ana still lists bia: %s", got)
	}
	if got, _ := r.Fans(ctx, "caio"); got != "{}" {
		t.Fatalf("caio still lists bia as fan: %s", got)
	}
	if _, err := r.ReadDirectMessage(ctx, caioTok); !errors.Is(err, ErrNoDirectMessages) {
		t.Fatal("bia's recado survived the cascade")
	}
	if _, err := r.CommunityDescription(ctx, "bia-fans"); !errors.Is(err, ErrCommunityNotFound) {
		t.Fatal("owned community survived the cascade")
	}
	if got, _ := r.Communities(ctx, "ana"); got != "{}" {
		t.Fatalf("ana still lists the dissolved community: %s", got)
	}
	if got, _ := r.CommunityMembers(ctx, "caiostans"); got != "{caio}" {
		t.Fatalf("bia still a member of caiostans: %s", got)
	}
	if _, err := r.Attribute(ctx, "bia", "login"); !errors.Is(err, ErrUnknownUser) {
		t.Fatal("bia still registered")
	}
	if _, err := r.ReadDirectMessage(ctx, biaTok); !errors.Is(err, ErrUnknownUser) {
		t.Fatal("bia's session not revoked")
	}
}

func TestEndToEndScenario(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "ana", "x", "Ana")
	register(t, r, "bia", "y", "Bia")
	anaTok := login(t, r, "ana", "x")
	biaTok := login(t, r, "bia", "y")

	if err := r.AddFriend(ctx, anaTok, "bia"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddFriend(ctx, biaTok, "ana"); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Friends(ctx, "ana"); got != "{bia}" {
		t.Fatalf("friends before removal: %s", got)
	}
	if err := r.RemoveUser(ctx, biaTok); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Friends(ctx, "ana"); got != "{}" {
		t.Fatalf("friends after removal: %s", got)
	}
}

func TestConcurrentRegistryAccess(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	register(t, r, "hub", "x", "Hub")
	hubTok := login(t, r, "hub", "x")

	var wg sync.WaitGroup
	const n = 32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := fmt.Sprintf("user%02d", i)
			if err := r.Register(ctx, who, "pw-"+who, "User "+who); err != nil {
				t.Errorf("register %s: %v", who, err)
				return
			}
			tok, err := r.Authenticate(ctx, who, "pw-"+who)
			if err != nil {
				t.Errorf("auth %s: %v", who, err)
				return
			}
			if err := r.SendDirectMessage(ctx, tok, "hub", "hello"); err != nil {
				t.Errorf("send %s: %v", who, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if _, err := r.ReadDirectMessage(ctx, hubTok); err != nil {
			t.Fatalf("expected %d recados, drained after %d: %v", n, i, err)
		}
	}
	if _, err := r.ReadDirectMessage(ctx, hubTok); !errors.Is(err, ErrNoDirectMessages) {
		t.Fatal("more recados than senders")
	}
}
