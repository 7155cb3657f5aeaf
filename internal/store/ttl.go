package store

import (
	"context"
	"time"

	"github.com/kraklabs/registryd/internal/model"
	"github.com/sirupsen/logrus"
)

// RunTTLSweeper runs the background eviction loop: every gcInterval, delete
// every OriginLocal record whose LastSeen is older than ttl. OriginReplica
// records are immune — they only go away when the primary replicates a
// deregister. The loop checks ctx at each iteration boundary and exits on
// cancellation, so callers can stop it cleanly during shutdown.
func (s *Store) RunTTLSweeper(ctx context.Context, ttl, gcInterval time.Duration) {
	log := s.log.WithField("loop", "ttl-sweeper")
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("ttl sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ttl, log)
		}
	}
}

func (s *Store) sweep(ttl time.Duration, log *logrus.Entry) {
	now := s.nowSeconds()
	ttlSecs := ttl.Seconds()

	s.mu.Lock()
	var expired []string
	for name, rec := range s.data {
		if rec.Origin != model.OriginLocal {
			continue
		}
		if now-rec.LastSeen > ttlSecs {
			expired = append(expired, name)
		}
	}
	for _, name := range expired {
		delete(s.data, name)
		if err := s.db.deleteRow(name); err != nil {
			log.WithError(err).WithField("name", name).Warn("durable delete failed during ttl eviction")
		}
	}
	s.mu.Unlock()

	for _, name := range expired {
		log.WithField("name", name).Info("ttl expired, record evicted")
	}
}
