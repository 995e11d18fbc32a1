package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-boutique-orders.git/internal/cart"
	"github.com/ariefcatur/go-boutique-orders.git/internal/config"
	"github.com/ariefcatur/go-boutique-orders.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-boutique-orders.git/internal/kafka"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/ariefcatur/go-boutique-orders.git/internal/postgres"
	"github.com/ariefcatur/go-boutique-orders.git/internal/redisx"
	"github.com/ariefcatur/go-boutique-orders.git/internal/sweeper"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pExpired := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicDraftExpired, 1024)
	pExpired.Start(ctx)
	pStock := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockReleased, 1024)
	pStock.Start(ctx)

	repo := &orders.Repo{DB: db}
	// sweeper lewat jalur release yg sama dgn lazy expiry: cart.ExpireDraft
	carts := &cart.Service{
		Repo:            repo,
		Catalog:         repo,
		Ledger:          &inventory.PGLedger{DB: db},
		Redis:           rdb,
		ServiceName:     cfg.ServiceName + "-sweeper",
		ProducerExpired: pExpired,
		ProducerStock:   pStock,
		TTL:             cfg.DraftTTL,
	}

	sw := &sweeper.Sweeper{
		Repo:     repo,
		Drafts:   carts,
		Redis:    rdb,
		Interval: cfg.SweepInterval,
		Batch:    cfg.SweepBatch,
	}

	go func() {
		log.Printf("sweeper started: interval=%s batch=%d", cfg.SweepInterval, cfg.SweepBatch)
		sw.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down sweeper...")
	pExpired.Close()
	pStock.Close()
	cancel()
	pExpired.WaitClosed()
	pStock.WaitClosed()
}
