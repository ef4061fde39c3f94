// Package runtime is the host side of the connection hub: it owns the
// sockets and the attachment store, serializes events per hub instance, and
// evicts idle in-memory hub state while keeping the connections open.
package runtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/connection-hub/backend/internal/repository"
)

const (
	defaultHibernateAfter = 45 * time.Second
	defaultSendBuffer     = 256
)

// Config holds runtime tuning knobs.
type Config struct {
	// HibernateAfter is how long an instance must be idle before its
	// in-memory hub state is evicted.
	HibernateAfter time.Duration

	// SendBuffer is the per-connection outbound queue size.
	SendBuffer int
}

// Runtime hosts all hub instances of this process.
type Runtime struct {
	cfg  Config
	repo *repository.AttachmentRepository

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	instances map[string]*Instance
}

// New creates a runtime and starts its hibernation janitor.
func New(repo *repository.AttachmentRepository, cfg Config) *Runtime {
	if cfg.HibernateAfter <= 0 {
		cfg.HibernateAfter = defaultHibernateAfter
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		cfg:       cfg,
		repo:      repo,
		ctx:       ctx,
		cancel:    cancel,
		instances: make(map[string]*Instance),
	}

	rt.wg.Add(1)
	go rt.janitor()

	return rt
}

// Instance returns the instance with the given id, creating it on first use.
func (rt *Runtime) Instance(id string) *Instance {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if inst, ok := rt.instances[id]; ok {
		return inst
	}

	inst := newInstance(id, rt)
	rt.instances[id] = inst
	return inst
}

// Lookup returns the instance with the given id without creating it.
func (rt *Runtime) Lookup(id string) (*Instance, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	inst, ok := rt.instances[id]
	return inst, ok
}

// Connect routes an upgrade request to the addressed instance.
func (rt *Runtime) Connect(instanceID string, w http.ResponseWriter, r *http.Request) error {
	return rt.Instance(instanceID).Connect(w, r)
}

// janitor periodically evicts idle instances.
func (rt *Runtime) janitor() {
	defer rt.wg.Done()

	interval := rt.cfg.HibernateAfter / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rt.ctx.Done():
			return
		case <-ticker.C:
			for _, inst := range rt.snapshot() {
				inst.hibernateIfIdle(rt.cfg.HibernateAfter)
			}
		}
	}
}

func (rt *Runtime) snapshot() []*Instance {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	instances := make([]*Instance, 0, len(rt.instances))
	for _, inst := range rt.instances {
		instances = append(instances, inst)
	}
	return instances
}

// Close closes every live connection through its regular close path, then
// stops the janitor. The context is cancelled last so the close path can
// still reach the attachment store.
func (rt *Runtime) Close() {
	for _, inst := range rt.snapshot() {
		inst.shutdown()
	}

	rt.cancel()
	rt.wg.Wait()
}
