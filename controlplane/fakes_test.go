package controlplane

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"syscall"
)

type fakeProcess struct {
	pid int

	mu      sync.Mutex
	done    chan struct{}
	exited  bool
	exitOn  map[os.Signal]bool
	signals []os.Signal
}

// newFakeProcess returns a running process that exits on any of exitOn.
func newFakeProcess(pid int, exitOn ...os.Signal) *fakeProcess {
	p := &fakeProcess{pid: pid, done: make(chan struct{}), exitOn: make(map[os.Signal]bool)}
	for _, sig := range exitOn {
		p.exitOn[sig] = true
	}
	return p
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return os.ErrProcessDone
	}
	p.signals = append(p.signals, sig)
	if p.exitOn[sig] {
		p.exitLocked()
	}
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitLocked()
}

func (p *fakeProcess) exitLocked() {
	if !p.exited {
		p.exited = true
		close(p.done)
	}
}

func (p *fakeProcess) received() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]os.Signal, len(p.signals))
	copy(out, p.signals)
	return out
}

type fakeLauncher struct {
	mu       sync.Mutex
	nextPID  int
	err      error
	exitOn   []os.Signal
	launched []LaunchSpec
	procs    []*fakeProcess
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPID: 4000, exitOn: []os.Signal{syscall.SIGTERM}}
}

func (l *fakeLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.nextPID++
	p := newFakeProcess(l.nextPID, l.exitOn...)
	l.launched = append(l.launched, spec)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[len(l.procs)-1]
}

type fakeCanceller struct {
	code  int
	err   error
	block bool
	calls []string
}

func (c *fakeCanceller) CancelOrders(ctx context.Context, apiKey, secretKey, symbol string) (int, error) {
	c.calls = append(c.calls, apiKey+"/"+symbol)
	if c.block {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	return c.code, c.err
}

// memStore is an in-memory CredentialStore.
type memStore struct {
	mu    sync.Mutex
	creds map[string]Credentials
	err   error
}

func newMemStore() *memStore {
	return &memStore{creds: make(map[string]Credentials)}
}

func (m *memStore) SaveCredentials(c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.creds[c.Wallet] = c
	return nil
}

func (m *memStore) Credentials(wallet string) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[wallet]
	if !ok {
		return nil, ErrNotRegistered
	}
	return &c, nil
}

func (m *memStore) Exists(wallet string) (bool, error) {
	_, err := m.Credentials(wallet)
	if errors.Is(err, ErrNotRegistered) {
		return false, nil
	}
	return err == nil, err
}

func (m *memStore) Wallets() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.creds))
	for w := range m.creds {
		out = append(out, w)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) remove(wallet string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, wallet)
}
