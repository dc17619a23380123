package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestRoomIDFor_IsSymmetric(t *testing.T) {
	pairs := [][2]string{{"alice", "bob"}, {"42", "7"}, {"Zed", "amy"}, {"a-b", "a_b"}}
	for _, p := range pairs {
		ab, err := RoomIDFor(p[0], p[1])
		if err != nil {
			t.Fatalf("room id %v: %v", p, err)
		}
		ba, err := RoomIDFor(p[1], p[0])
		if err != nil {
			t.Fatalf("room id %v reversed: %v", p, err)
		}
		if ab != ba {
			t.Fatalf("expected same room id, got %q and %q", ab, ba)
		}
	}

	id, _ := RoomIDFor("bob", "alice")
	if id != "alice:bob" {
		t.Fatalf("unexpected room id %q", id)
	}
}

func TestRoomIDFor_Errors(t *testing.T) {
	cases := []struct {
		x, y string
		want error
	}{
		{"", "bob", ErrInvalidIdentifier},
		{"alice", "", ErrInvalidIdentifier},
		{"al:ice", "bob", ErrInvalidIdentifier},
		{"al ice", "bob", ErrInvalidIdentifier},
		{"alice", "bob\n", ErrInvalidIdentifier},
		{strings.Repeat("x", 65), "bob", ErrInvalidIdentifier},
		{"alice", string([]byte{0xff, 0xfe}), ErrInvalidIdentifier},
		{"alice", "alice", ErrSelfChat},
	}
	for _, c := range cases {
		if _, err := RoomIDFor(c.x, c.y); !errors.Is(err, c.want) {
			t.Fatalf("RoomIDFor(%q, %q): expected %v, got %v", c.x, c.y, c.want, err)
		}
	}
}

func TestResolve_SameRoomBothDirections(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db))
	ctx := context.Background()

	ab, err := r.Resolve(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	ba, err := r.Resolve(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("resolve reversed: %v", err)
	}
	if ab.ID != ba.ID || ab.RoomID != ba.RoomID {
		t.Fatalf("expected same room, got %+v and %+v", ab, ba)
	}
	if ab.UserA != "alice" || ab.UserB != "bob" {
		t.Fatalf("expected canonical order, got %q %q", ab.UserA, ab.UserB)
	}
	if n := countRooms(t, db); n != 1 {
		t.Fatalf("expected 1 room, got %d", n)
	}
}

func TestResolve_ValidationHasNoSideEffect(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db))

	if _, err := r.Resolve(context.Background(), "alice", "alice"); !errors.Is(err, ErrSelfChat) {
		t.Fatalf("expected ErrSelfChat, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "", "alice"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
	if n := countRooms(t, db); n != 0 {
		t.Fatalf("expected no rooms, got %d", n)
	}
}

func TestResolve_ConcurrentFirstCallsCreateOneRoom(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db))

	const n = 16
	ids := make([]uint64, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			x, y := "alice", "bob"
			if i%2 == 1 {
				x, y = y, x
			}
			room, err := r.Resolve(context.Background(), x, y)
			errs[i] = err
			if err == nil {
				ids[i] = room.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("resolve %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected one room id, got %d and %d", ids[0], ids[i])
		}
	}
	if c := countRooms(t, db); c != 1 {
		t.Fatalf("expected 1 room, got %d", c)
	}
}

func TestResolve_PersistenceFailure(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db))

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	if _, err := r.Resolve(context.Background(), "alice", "bob"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}
