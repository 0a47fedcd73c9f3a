package scheduler

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/vpspilot/vpspilot/internal/pkg/database"
	"github.com/vpspilot/vpspilot/internal/pkg/env"
	"github.com/vpspilot/vpspilot/internal/pkg/subscription"
)

// Manager runs the periodic maintenance sweeps: expiring ended purchases and
// purging stale QR login tokens. Sweeps are single bulk statements and run
// independently of webhook processing.
type Manager struct {
	repo subscription.Repository

	expireInterval time.Duration
	purgeInterval  time.Duration

	expireTicker *time.Ticker
	purgeTicker  *time.Ticker
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global sweep manager (singleton).
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(
			subscription.NewRepository(database.GetDB()),
			intervalFromEnv("PURCHASE_SWEEP_INTERVAL_MINUTES", 60),
			intervalFromEnv("QR_PURGE_INTERVAL_MINUTES", 10),
		)
	})
	return globalManager
}

// NewManager creates a sweep manager with explicit collaborators.
func NewManager(repo subscription.Repository, expireInterval, purgeInterval time.Duration) *Manager {
	return &Manager{
		repo:           repo,
		expireInterval: expireInterval,
		purgeInterval:  purgeInterval,
		stopCh:         make(chan struct{}),
	}
}

// Start launches the sweep workers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel per start cycle so the manager can be restarted.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting maintenance sweeps")

	m.expireTicker = time.NewTicker(m.expireInterval)
	m.wg.Add(1)
	go m.expireWorker()

	m.purgeTicker = time.NewTicker(m.purgeInterval)
	m.wg.Add(1)
	go m.purgeWorker()
}

// Stop halts the workers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false

	m.expireTicker.Stop()
	m.purgeTicker.Stop()
	close(m.stopCh)
	m.wg.Wait()
	log.Info("[Scheduler] Maintenance sweeps stopped")
}

func (m *Manager) expireWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.expireTicker.C:
			count, err := m.repo.ExpireEndedPurchases(time.Now())
			if err != nil {
				log.Errorf("[Scheduler] expiring ended purchases: %v", err)
				continue
			}
			if count > 0 {
				log.Infof("[Scheduler] expired %d ended purchases", count)
			}
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) purgeWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.purgeTicker.C:
			count, err := m.repo.PurgeStaleQrLogins(time.Now())
			if err != nil {
				log.Errorf("[Scheduler] purging stale QR logins: %v", err)
				continue
			}
			if count > 0 {
				log.Infof("[Scheduler] purged %d stale QR logins", count)
			}
		case <-m.stopCh:
			return
		}
	}
}

func intervalFromEnv(key string, defMinutes int) time.Duration {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v > 0 {
		return time.Duration(v) * time.Minute
	}
	return time.Duration(defMinutes) * time.Minute
}
