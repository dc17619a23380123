package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/pairchat/internal/config"
	"github.com/suPer8Hu/pairchat/internal/db"
	"github.com/suPer8Hu/pairchat/internal/logger"
	"github.com/suPer8Hu/pairchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/pairchat/internal/store/redisstore"
	"github.com/suPer8Hu/pairchat/internal/users"
	"go.uber.org/zap"
)

const (
	maxRetries = 3
	retryDelay = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		lg.Fatal("db open", zap.Error(err))
	}
	if err := db.Migrate(gdb, &users.User{}); err != nil {
		lg.Fatal("db migrate", zap.Error(err))
	}

	snaps := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer snaps.Close()
	if err := snaps.Ping(context.Background()); err != nil {
		lg.Fatal("redis ping", zap.Error(err))
	}

	recorder := users.NewStatusRecorder(users.NewRepo(gdb), snaps, lg)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		lg.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		lg.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		lg.Fatal("queue declare", zap.Error(err))
	}

	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		lg.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		lg.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// publishing on the shared channel is serialized
	var pubMu sync.Mutex

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := lg.With(zap.Int("worker", workerID))
			for d := range jobs {
				ev, err := rabbitmq.DecodeStatusChange(d.Body)
				if err != nil {
					wlog.Warn("bad message", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := recorder.Record(ctx, ev); err != nil {
					attempt := rabbitmq.RetryCount(d)
					wlog.Error("record status failed",
						zap.String("user_id", ev.UserID),
						zap.String("status", string(ev.Status)),
						zap.Int("attempt", attempt),
						zap.Duration("cost", time.Since(start)),
						zap.Error(err),
					)
					if attempt < maxRetries && !errors.Is(err, context.Canceled) {
						pubMu.Lock()
						rerr := rabbitmq.Retry(ctx, ch, cfg.RabbitQueue, d, retryDelay)
						pubMu.Unlock()
						if rerr == nil {
							_ = d.Ack(false)
							continue
						}
						wlog.Error("retry publish failed", zap.Error(rerr))
					}
					// dead-lettered to <queue>.dlq
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					wlog.Warn("ack failed", zap.String("user_id", ev.UserID), zap.Error(err))
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			lg.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				lg.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}
