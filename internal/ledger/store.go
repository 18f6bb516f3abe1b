package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"renaissance-stewcall/internal/models"

	"github.com/go-redis/redis/v8"
)

// DocumentVersion current on-disk format
const DocumentVersion = 1

var (
	// ErrStoreMiss the store holds no ledger yet
	ErrStoreMiss = errors.New("ledger store miss")
	// ErrNotFound no ledger entry for the alarm
	ErrNotFound = errors.New("alarm not found in ledger")
)

// Document the whole ledger as persisted
type Document struct {
	Version     int                           `json:"version"`
	LastUpdated time.Time                     `json:"lastUpdated"`
	Alarms      map[string]models.LedgerEntry `json:"alarms"`
}

// Store durable ledger storage. The ledger is always read and written whole.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}

// FileStore keeps the ledger as one JSON file
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store; the directory is created on first save
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(ctx context.Context) (*Document, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrStoreMiss
		}
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}
	return decodeDocument(raw)
}

// Save writes to a temp file and renames it over the old one
func (f *FileStore) Save(ctx context.Context, doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

// KVStore minimal key/value contract (swapped for a fake in tests)
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore go-redis backed KVStore
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrStoreMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// kvDocumentStore stores the document under a single key without TTL
type kvDocumentStore struct {
	kv  KVStore
	key string
}

// NewKVStore adapts a KVStore to a ledger Store
func NewKVStore(kv KVStore, key string) Store {
	return &kvDocumentStore{kv: kv, key: key}
}

func (s *kvDocumentStore) Load(ctx context.Context) (*Document, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return decodeDocument([]byte(raw))
}

func (s *kvDocumentStore) Save(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(raw), 0); err != nil {
		return fmt.Errorf("failed to write ledger key %s: %w", s.key, err)
	}
	return nil
}

func decodeDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	if doc.Version > DocumentVersion {
		return nil, fmt.Errorf("unsupported ledger version %d", doc.Version)
	}
	if doc.Alarms == nil {
		doc.Alarms = make(map[string]models.LedgerEntry)
	}
	return &doc, nil
}
