package models

import "testing"

func TestCanMutate(t *testing.T) {
	cases := []struct {
		name    string
		actorID uint
		role    string
		ownerID uint
		want    bool
	}{
		{"owner", 7, RoleUser, 7, true},
		{"other user", 7, RoleUser, 8, false},
		{"admin on foreign entity", 1, RoleAdmin, 8, true},
		{"admin on own entity", 1, RoleAdmin, 1, true},
		{"empty role stranger", 7, "", 8, false},
	}
	for _, c := range cases {
		if got := CanMutate(c.actorID, c.role, c.ownerID); got != c.want {
			t.Errorf("%s: CanMutate(%d, %q, %d) = %v, want %v", c.name, c.actorID, c.role, c.ownerID, got, c.want)
		}
	}
}

func TestCanPost(t *testing.T) {
	if CanPost(&Thread{IsLocked: true}) {
		t.Fatal("expected posting rejected on locked thread")
	}
	if !CanPost(&Thread{IsLocked: false}) {
		t.Fatal("expected posting allowed on unlocked thread")
	}
}

func TestPublicUserStripsPrivateFields(t *testing.T) {
	u := User{
		ID:           3,
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Provider:     "github",
		ProviderID:   "12345",
		Role:         RoleUser,
		PostCount:    4,
		Reputation:   9,
	}
	p := u.Public()
	if p.ID != u.ID || p.Username != u.Username || p.PostCount != 4 || p.Reputation != 9 {
		t.Fatalf("public profile lost fields: %+v", p)
	}
}
