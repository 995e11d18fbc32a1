package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-boutique-orders.git/internal/cart"
	"github.com/ariefcatur/go-boutique-orders.git/internal/config"
	"github.com/ariefcatur/go-boutique-orders.git/internal/fulfillment"
	"github.com/ariefcatur/go-boutique-orders.git/internal/httpx"
	"github.com/ariefcatur/go-boutique-orders.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-boutique-orders.git/internal/kafka"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/ariefcatur/go-boutique-orders.git/internal/postgres"
	"github.com/ariefcatur/go-boutique-orders.git/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// migrasi dulu, baru buka pool
	if err := postgres.RunMigrations(cfg.PostgresDSN, cfg.MigrationsPath); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// producer per topic
	pPaid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024)
	pExpired := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicDraftExpired, 1024)
	pStock := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockReleased, 1024)
	producers := []*kafkax.Producer{pPaid, pStatus, pExpired, pStock}
	for _, p := range producers {
		p.Start(ctx)
	}

	repo := &orders.Repo{DB: db}
	ledger := &inventory.PGLedger{DB: db}

	carts := &cart.Service{
		Repo:            repo,
		Catalog:         repo,
		Ledger:          ledger,
		Redis:           rdb,
		ServiceName:     cfg.ServiceName,
		ProducerPaid:    pPaid,
		ProducerStatus:  pStatus,
		ProducerExpired: pExpired,
		ProducerStock:   pStock,
		TTL:             cfg.DraftTTL,
	}
	fulfil := &fulfillment.Service{
		Repo:           repo,
		Ledger:         ledger,
		Redis:          rdb,
		ServiceName:    cfg.ServiceName,
		ProducerStatus: pStatus,
		ProducerStock:  pStock,
	}

	router := httpx.NewRouter()
	(&httpx.CartHandler{Carts: carts}).Register(router)
	(&httpx.OrdersHandler{Repo: repo, Catalog: repo, Fulfillment: fulfil, Redis: rdb}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // tutup inbox -> flush & close writer
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
