package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
)

// Store persists a record between invocations. A store with nothing saved loads the empty record.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
}

// document is the persisted form: textual addresses and raw integer amounts.
type document struct {
	Addresses map[string]string `json:"addresses"`
	Amounts   map[string]uint64 `json:"amounts"`
	Steps     []stepDocument    `json:"steps"`
}

type stepDocument struct {
	Name      string    `json:"name"`
	Signature string    `json:"signature,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Marshal encodes rec as the persisted JSON document.
func Marshal(rec Record) ([]byte, error) {
	doc := document{
		Addresses: make(map[string]string, len(rec.Addresses)),
		Amounts:   make(map[string]uint64, len(rec.Amounts)),
		Steps:     make([]stepDocument, 0, len(rec.Steps)),
	}
	for k, v := range rec.Addresses {
		doc.Addresses[k] = v.String()
	}
	for k, v := range rec.Amounts {
		doc.Amounts[k] = v
	}
	for _, s := range rec.Steps {
		sd := stepDocument{Name: s.Name, Timestamp: s.Timestamp.UTC()}
		if !s.Signature.IsZero() {
			sd.Signature = s.Signature.String()
		}
		doc.Steps = append(doc.Steps, sd)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Unmarshal decodes a document written by Marshal.
func Unmarshal(data []byte) (Record, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Record{}, fmt.Errorf("decode workflow document: %w", err)
	}
	rec := Record{
		Addresses: make(map[string]solana.PublicKey, len(doc.Addresses)),
		Amounts:   make(map[string]uint64, len(doc.Amounts)),
		Steps:     make([]StepResult, 0, len(doc.Steps)),
	}
	for k, v := range doc.Addresses {
		addr, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return Record{}, fmt.Errorf("decode address %s: %w", k, err)
		}
		rec.Addresses[k] = addr
	}
	for k, v := range doc.Amounts {
		rec.Amounts[k] = v
	}
	for _, sd := range doc.Steps {
		s := StepResult{Name: sd.Name, Timestamp: sd.Timestamp}
		if sd.Signature != "" {
			sig, err := solana.SignatureFromBase58(sd.Signature)
			if err != nil {
				return Record{}, fmt.Errorf("decode signature of %s: %w", sd.Name, err)
			}
			s.Signature = sig
		}
		rec.Steps = append(rec.Steps, s)
	}
	return rec, nil
}

func emptyRecord() Record {
	return Record{Addresses: map[string]solana.PublicKey{}, Amounts: map[string]uint64{}}
}

// FileStore keeps the document in one file, replaced atomically on save.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(_ context.Context) (Record, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyRecord(), nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read workflow state: %w", err)
	}
	return Unmarshal(data)
}

func (s *FileStore) Save(_ context.Context, rec Record) error {
	data, err := Marshal(rec)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write workflow state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write workflow state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write workflow state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write workflow state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace workflow state: %w", err)
	}
	return nil
}

// RedisStore keeps the document under one key without expiry.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Record, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	switch {
	case err == redis.Nil:
		return emptyRecord(), nil
	case err != nil:
		return Record{}, fmt.Errorf("redis get error: %w", err)
	}
	return Unmarshal(data)
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}
