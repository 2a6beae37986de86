package controlplane

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
)

// ErrNotRegistered is returned for a wallet with no stored credentials.
var ErrNotRegistered = errors.New("wallet address not registered")

// Credentials is the exchange key pair registered for a wallet.
type Credentials struct {
	Wallet       string    `json:"wallet_address"`
	APIKey       string    `json:"api_key"`
	SecretKey    string    `json:"secret_key"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CredentialStore is the persistence the supervisor and API need.
type CredentialStore interface {
	SaveCredentials(c Credentials) error
	Credentials(wallet string) (*Credentials, error)
	Exists(wallet string) (bool, error)
	Wallets() ([]string, error)
}

// Store keeps credentials in pebble.
type Store struct {
	db *pebble.DB
}

// keys: cred:<wallet>
const credPrefix = "cred:"

func credKey(wallet string) []byte { return []byte(credPrefix + wallet) }

func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveCredentials adds or replaces the key pair for c.Wallet.
func (s *Store) SaveCredentials(c Credentials) error {
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = time.Now().UTC()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := s.db.Set(credKey(c.Wallet), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *Store) Credentials(wallet string) (*Credentials, error) {
	data, closer, err := s.db.Get(credKey(wallet))
	if err == pebble.ErrNotFound {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	defer closer.Close()

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return &c, nil
}

func (s *Store) Exists(wallet string) (bool, error) {
	_, err := s.Credentials(wallet)
	if errors.Is(err, ErrNotRegistered) {
		return false, nil
	}
	return err == nil, err
}

// Wallets lists every registered wallet, sorted.
func (s *Store) Wallets() ([]string, error) {
	prefix := []byte(credPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan credentials: %w", err)
	}
	defer iter.Close()

	var wallets []string
	for iter.First(); iter.Valid(); iter.Next() {
		wallets = append(wallets, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan credentials: %w", err)
	}
	sort.Strings(wallets)
	return wallets, nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

var _ CredentialStore = (*Store)(nil)
