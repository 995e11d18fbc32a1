package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/ariefcatur/go-boutique-orders.git/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Drafts: potongan cart.Service yg dibutuhkan sweeper. Jalur release
// stok tetap satu (ExpireDraft), sweeper cuma penjadwal.
type Drafts interface {
	ExpireDraft(ctx context.Context, o *orders.Order) (bool, error)
}

type Lister interface {
	ListExpiredDrafts(ctx context.Context, now time.Time, limit int) ([]*orders.Order, error)
}

// Sweeper memunguti draft yg lewat expires_at dan mengembalikan
// reservasinya. Idempotent: sweep kedua atas draft yg sama berakhir
// no-op karena CAS di ExpireDraft.
type Sweeper struct {
	Repo     Lister
	Drafts   Drafts
	Redis    *redis.Client // optional; lock antar-instance
	Interval time.Duration
	Batch    int
}

func (s *Sweeper) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return time.Minute
}

func (s *Sweeper) batch() int {
	if s.Batch > 0 {
		return s.Batch
	}
	return 100
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.Printf("sweep: %v", err)
			} else if n > 0 {
				log.Printf("sweep: expired %d draft(s)", n)
			}
		}
	}
}

// SweepOnce menggarap satu batch; return jumlah draft yg berhasil
// di-expire oleh instance ini.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	drafts, err := s.Repo.ListExpiredDrafts(ctx, now, s.batch())
	if err != nil {
		return 0, err
	}

	n := 0
	for _, o := range drafts {
		if !s.tryLock(ctx, o.ID) {
			continue // instance lain sedang pegang draft ini
		}
		won, err := s.Drafts.ExpireDraft(ctx, o)
		if err != nil {
			log.Printf("expire draft %s: %v", o.ID, err)
			continue
		}
		if won {
			n++
		}
	}
	return n, nil
}

func (s *Sweeper) tryLock(ctx context.Context, orderID string) bool {
	if s.Redis == nil {
		return true
	}
	key := fmt.Sprintf(redisx.KeySweepLock, orderID)
	ok, err := s.Redis.SetNX(ctx, key, "1", redisx.TTLSweepLock).Result()
	if err != nil {
		log.Printf("sweep lock %s: %v", orderID, err)
		return true // redis bermasalah bukan alasan berhenti; CAS tetap jaga
	}
	return ok
}
