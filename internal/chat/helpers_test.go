package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/pairchat/internal/presence"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type push struct {
	handle presence.Handle
	n      Notification
}

// recordingPusher records pushes; handles listed in failing return an error instead.
type recordingPusher struct {
	mu      sync.Mutex
	pushes  []push
	failing map[presence.Handle]bool
}

func (p *recordingPusher) Push(ctx context.Context, h presence.Handle, n Notification) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[h] {
		return errors.New("connection gone")
	}
	p.pushes = append(p.pushes, push{handle: h, n: n})
	return nil
}

func (p *recordingPusher) contents(h presence.Handle) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, x := range p.pushes {
		if x.handle == h {
			out = append(out, x.n.Content)
		}
	}
	return out
}

type testEnv struct {
	db       *gorm.DB
	repo     *Repo
	registry *presence.Registry
	pusher   *recordingPusher
	svc      *Service
	disp     *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	repo := NewRepo(db)
	reg := presence.NewRegistry(presence.Options{Shards: 4, EventBuffer: 64}, nil)
	pusher := &recordingPusher{failing: map[presence.Handle]bool{}}
	disp := NewDispatcher(NewResolver(repo), NewStore(repo), reg, pusher, nil, DispatcherOptions{MaxContentLength: 100})
	return &testEnv{
		db:       db,
		repo:     repo,
		registry: reg,
		pusher:   pusher,
		svc:      NewService(repo, disp, 50),
		disp:     disp,
	}
}

func countRooms(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&Room{}).Count(&n).Error; err != nil {
		t.Fatalf("count rooms: %v", err)
	}
	return n
}

func countMessages(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&Message{}).Count(&n).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}
