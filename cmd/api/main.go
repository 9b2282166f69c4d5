package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/otonoha/academy-backend/internal/config"
	"github.com/otonoha/academy-backend/internal/db"
	"github.com/otonoha/academy-backend/internal/model"
	"github.com/otonoha/academy-backend/internal/server"
	"golang.org/x/sync/errgroup"
)

var (
	gitSHA    = "dev"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	if err := conn.AutoMigrate(
		&model.UserPoints{},
		&model.PointTransaction{},
		&model.GachaMachine{},
		&model.GachaReward{},
		&model.MachineReward{},
		&model.DrawHistory{},
		&model.UserReward{},
	); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	srv := server.New(conn, cfg, gitSHA, buildTime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runSweeper(ctx, srv, cfg.SweepInterval)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on %s", addr)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		log.Fatalf("server stopped: %v", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}

// runSweeper periodically expires rewards past their validity window and
// point grants past theirs. Both sweeps are idempotent, so overlap with a
// previous tick or another instance is harmless.
func runSweeper(ctx context.Context, srv *server.Server, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			n, err := srv.Fulfillment.Sweep(gctx, now)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Printf("[sweep] expired %d user rewards", n)
			}
			return nil
		})
		g.Go(func() error {
			n, err := srv.Ledger.ExpireDue(gctx, now)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Printf("[sweep] expired %d point grants", n)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			log.Printf("[sweep] error: %v", err)
		}
	}
}
