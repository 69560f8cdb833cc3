package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/icarpio/marianoapi/internal/booking"
	"github.com/icarpio/marianoapi/internal/config"
	"github.com/icarpio/marianoapi/internal/db"
	redisclient "github.com/icarpio/marianoapi/internal/redis"
	"github.com/icarpio/marianoapi/internal/schedule"
)

// agenda-worker periodically flags past appointments that were never
// completed or cancelled as no_show, so they stop blocking history
// views and reporting.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("agenda-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running agenda worker in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	scheduler := booking.NewScheduler(repo, locker, schedule.Default())

	// Run once at startup
	runOnce(rootCtx, scheduler)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping agenda worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, scheduler)
		}
	}
}

func runOnce(ctx context.Context, scheduler *booking.Scheduler) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := scheduler.MarkOverdueNoShows(runCtx)
	if err != nil {
		log.Printf("no-show run error: %v", err)
		return
	}
	log.Printf("no-show run complete: marked=%d in %s", marked, time.Since(start))
}
