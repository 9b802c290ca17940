package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"lienchain/storage"
)

// KVStore adapts a raw storage.Database into the typed key-value surface the
// native modules are written against. Values are RLP encoded; list keys hold
// an RLP [][]byte payload so appends stay cheap.
type KVStore struct {
	db storage.Database
}

// NewKVStore wraps the provided database.
func NewKVStore(db storage.Database) *KVStore {
	return &KVStore{db: db}
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("state: kv store not initialised")
	}
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value and stores it under key.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: kv store not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

// KVDelete removes key by overwriting it with an empty list payload. The
// underlying databases do not expose deletes uniformly, so modules treat an
// empty value as absent.
func (s *KVStore) KVDelete(key []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: kv store not initialised")
	}
	return s.db.Put(key, []byte{})
}

// KVAppend adds an encoded entry to the list stored under key.
func (s *KVStore) KVAppend(key []byte, value []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: kv store not initialised")
	}
	var list [][]byte
	if err := s.KVGetList(key, &list); err != nil {
		return err
	}
	list = append(list, value)
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return fmt.Errorf("state: encode list %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

// KVGetList decodes the list stored under key into out. A missing key yields
// an empty list.
func (s *KVStore) KVGetList(key []byte, out *[][]byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: kv store not initialised")
	}
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			*out = nil
			return nil
		}
		return err
	}
	if len(raw) == 0 {
		*out = nil
		return nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return fmt.Errorf("state: decode list %q: %w", key, err)
	}
	return nil
}
