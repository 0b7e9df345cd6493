package snapfile

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"tribo.social/internal/social"
)

func sample() social.Snapshot {
	return social.Snapshot{
		Users: []social.UserRecord{
			{
				Login:      "ana",
				Name:       "Ana",
				Secret:     "x",
				Attributes: map[string]string{"city": "Maceio"},
				Relations: map[social.RelationKind][]string{
					social.KindFriend: {"bia"},
				},
				Direct:     []social.Message{{Sender: "bia", Text: "oi"}},
				Recipients: []string{"bia"},
			},
			{Login: "bia", Name: "Bia", Secret: "y"},
		},
		Communities: []social.CommunityRecord{
			{Name: "gophers", Owner: "ana", Description: "Go talk", Members: []string{"ana", "bia"}},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)
	ctx := context.Background()

	want := sample()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.json"))
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Users) != 0 || len(snap.Communities) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	snap, err := New(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Users) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "state.json"))
	if err := s.Save(context.Background(), sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}
