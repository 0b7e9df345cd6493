package social

import (
	"errors"
	"testing"
)

func TestUserAttributeBuiltins(t *testing.T) {
	u := NewUser("ana", "x", "Ana Lima")

	if v, err := u.Attribute("name"); err != nil || v != "Ana Lima" {
		t.Fatalf("name: %q, %v", v, err)
	}
	if v, err := u.Attribute("login"); err != nil || v != "ana" {
		t.Fatalf("login: %q, %v", v, err)
	}
	if _, err := u.Attribute("city"); !errors.Is(err, ErrMissingAttribute) {
		t.Fatalf("expected ErrMissingAttribute, got %v", err)
	}

	u.EditProfile("city", "Maceio")
	if v, err := u.Attribute("city"); err != nil || v != "Maceio" {
		t.Fatalf("city after edit: %q, %v", v, err)
	}
}

// Profile edits match the field against the current name and secret values,
// not literal field identifiers. The test pins that behavior down.
func TestUserEditProfileMatchesCurrentValues(t *testing.T) {
	u := NewUser("ana", "x", "Ana")

	u.EditProfile("Ana", "Ana Lima")
	if u.Name() != "Ana Lima" {
		t.Fatalf("display name not updated: %q", u.Name())
	}
	if _, err := u.Attribute("Ana"); !errors.Is(err, ErrMissingAttribute) {
		t.Fatal("matching the old name must not create an attribute")
	}

	u.EditProfile("x", "y")
	if u.CompareSecret("x") || !u.CompareSecret("y") {
		t.Fatal("secret not rotated")
	}

	// After the rename, "Ana" no longer matches and lands in the map.
	u.EditProfile("Ana", "whatever")
	if v, err := u.Attribute("Ana"); err != nil || v != "whatever" {
		t.Fatalf("expected plain attribute, got %q, %v", v, err)
	}
}

func TestUserInvitationLifecycle(t *testing.T) {
	u := NewUser("bia", "y", "Bia")

	if err := u.ReceiveInvitation("ana"); err != nil {
		t.Fatalf("first invitation: %v", err)
	}
	if err := u.ReceiveInvitation("ana"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate invitation should conflict, got %v", err)
	}
	if !u.HasInvitationFrom("ana") {
		t.Fatal("pending invitation missing")
	}

	if err := u.AcceptFriend("ana"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if u.HasInvitationFrom("ana") {
		t.Fatal("invitation should be consumed")
	}
	if ok, err := u.IsFriend("ana"); err != nil || !ok {
		t.Fatalf("friendship edge missing: %v", err)
	}
	if err := u.ReceiveInvitation("ana"); !errors.Is(err, ErrConflict) {
		t.Fatalf("inviting an existing friend should conflict, got %v", err)
	}
	if _, err := u.IsFriend("bia"); !errors.Is(err, ErrSelfRelation) {
		t.Fatalf("self friendship query should fail, got %v", err)
	}
}

func TestUserQueuesAreIndependentFIFO(t *testing.T) {
	u := NewUser("ana", "x", "Ana")
	u.EnqueueDirectMessage("first", "bia")
	u.EnqueueDirectMessage("second", "caio")
	u.EnqueueBroadcast("hello members", "bia")

	if got, err := u.DequeueDirectMessage(); err != nil || got != "first" {
		t.Fatalf("direct #1: %q, %v", got, err)
	}
	if got, err := u.DequeueDirectMessage(); err != nil || got != "second" {
		t.Fatalf("direct #2: %q, %v", got, err)
	}
	if _, err := u.DequeueDirectMessage(); !errors.Is(err, ErrNoDirectMessages) {
		t.Fatalf("expected ErrNoDirectMessages, got %v", err)
	}

	if got, err := u.DequeueBroadcast(); err != nil || got != "hello members" {
		t.Fatalf("broadcast: %q, %v", got, err)
	}
	if _, err := u.DequeueBroadcast(); !errors.Is(err, ErrNoBroadcasts) {
		t.Fatalf("expected ErrNoBroadcasts, got %v", err)
	}
}

func TestUserPurgeReferencesTo(t *testing.T) {
	u := NewUser("ana", "x", "Ana")
	for _, k := range Kinds {
		if err := u.Relation(k).Add("bia"); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	u.EnqueueDirectMessage("from bia", "bia")
	u.EnqueueDirectMessage("from caio", "caio")
	u.EnqueueBroadcast("bcast from bia", "bia")
	u.RecordRecipient("bia")

	u.PurgeReferencesTo("bia")

	for _, k := range Kinds {
		if u.Relation(k).Contains("bia") {
			t.Fatalf("kind %s still references bia", k)
		}
	}
	if got, err := u.DequeueDirectMessage(); err != nil || got != "from caio" {
		t.Fatalf("expected caio's recado to survive, got %q, %v", got, err)
	}
	if _, err := u.DequeueBroadcast(); !errors.Is(err, ErrNoBroadcasts) {
		t.Fatal("bia's broadcast should be gone")
	}
	if len(u.Recipients()) != 0 {
		t.Fatalf("recipient bookkeeping still references bia: %v", u.Recipients())
	}
}
