package controlplane

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"aster-vault-bot/strategy"
)

// ErrAlreadyRunning is returned when a wallet already has a live instance.
var ErrAlreadyRunning = errors.New("strategy already running for wallet")

// Instance is one launched strategy process.
type Instance struct {
	ID         uuid.UUID
	Wallet     string
	Strategy   strategy.Type
	Symbol     string
	Budget     decimal.Decimal
	Iterations int
	StartedAt  time.Time
	Process    Process
}

func (i *Instance) PID() int {
	return i.Process.PID()
}

func (i *Instance) Alive() bool {
	return i.Process.Alive()
}

// Registry tracks at most one instance per wallet.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Instance
}

func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*Instance),
	}
}

// Add registers inst. A dead instance for the same wallet is replaced; a
// live one is ErrAlreadyRunning.
func (r *Registry) Add(inst *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.instances[inst.Wallet]; ok && existing.Alive() {
		return ErrAlreadyRunning
	}
	r.instances[inst.Wallet] = inst
	return nil
}

func (r *Registry) Get(wallet string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[wallet]
	return inst, ok
}

// Running returns the live instance for wallet, if any.
func (r *Registry) Running(wallet string) (*Instance, bool) {
	inst, ok := r.Get(wallet)
	if !ok || !inst.Alive() {
		return nil, false
	}
	return inst, true
}

// RemoveIf drops wallet's entry only while it still points at inst.
func (r *Registry) RemoveIf(inst *Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.instances[inst.Wallet]; ok && current == inst {
		delete(r.instances, inst.Wallet)
		return true
	}
	return false
}

// Snapshot returns the tracked instances ordered by wallet.
func (r *Registry) Snapshot() []*Instance {
	r.mu.Lock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}

// Live counts tracked instances whose process is still running.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inst := range r.instances {
		if inst.Alive() {
			n++
		}
	}
	return n
}
