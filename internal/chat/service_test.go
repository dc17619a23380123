package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/suPer8Hu/pairchat/internal/presence"
)

func TestHandleInboundFrame_SendsMessage(t *testing.T) {
	env := newTestEnv(t)
	_ = env.registry.Connect("bob", "h1")

	out, err := env.svc.HandleInboundFrame(context.Background(), "alice", "bob", "ping", "")
	if err != nil {
		t.Fatalf("inbound frame: %v", err)
	}
	if out.Status != Delivered {
		t.Fatalf("expected delivered, got %s", out.Status)
	}
}

func TestGetHistory_DoesNotCreateRoom(t *testing.T) {
	env := newTestEnv(t)

	msgs, err := env.svc.GetHistory(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history, got %d", len(msgs))
	}
	if n := countRooms(t, env.db); n != 0 {
		t.Fatalf("reading history must not create a room, got %d", n)
	}

	if _, err := env.svc.GetHistory(context.Background(), "alice", "alice"); !errors.Is(err, ErrSelfChat) {
		t.Fatalf("expected ErrSelfChat, got %v", err)
	}
}

func TestGetHistoryPage_ClampsLimit(t *testing.T) {
	env := newTestEnv(t)
	env.svc.pageSize = 2
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.svc.HandleInboundFrame(ctx, "alice", "bob", fmt.Sprintf("m%d", i), ""); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	page, next, err := env.svc.GetHistoryPage(ctx, "bob", "alice", nil, 100)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 || next == nil {
		t.Fatalf("expected a clamped first page with a cursor, got %d messages next=%v", len(page), next)
	}
	page, next, err = env.svc.GetHistoryPage(ctx, "bob", "alice", next, 0)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page) != 1 || page[0].Content != "m2" || next != nil {
		t.Fatalf("unexpected last page %+v next=%v", page, next)
	}
}

func TestGetStatusAndOnlineUsers(t *testing.T) {
	env := newTestEnv(t)

	if env.svc.GetStatus("alice") != presence.StatusOffline {
		t.Fatalf("expected offline")
	}
	_ = env.registry.Connect("alice", "h1")
	if env.svc.GetStatus("alice") != presence.StatusOnline {
		t.Fatalf("expected online")
	}
	if got := env.svc.OnlineUsers(); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("unexpected online users %v", got)
	}
}

func TestRooms_ListsConversations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.HandleInboundFrame(ctx, "alice", "bob", "hi", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.svc.resolver.Resolve(ctx, "carol", "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := env.svc.HandleInboundFrame(ctx, "dave", "erin", "unrelated", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = env.registry.Connect("carol", "c1")

	rooms, err := env.svc.Rooms(ctx, "alice")
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].Peer != "bob" || rooms[0].LastMessageAt == nil {
		t.Fatalf("unexpected first room %+v", rooms[0])
	}
	if rooms[1].Peer != "carol" || rooms[1].LastMessageAt != nil || rooms[1].PeerStatus != "online" {
		t.Fatalf("unexpected second room %+v", rooms[1])
	}
}
