package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lienchain/storage"
)

type kvRecord struct {
	Name  string
	Count uint64
}

func TestKVStoreRoundTrip(t *testing.T) {
	kv := NewKVStore(storage.NewMemDB())

	ok, err := kv.KVGet([]byte("missing"), &kvRecord{})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.KVPut([]byte("record"), kvRecord{Name: "alpha", Count: 7}))
	var decoded kvRecord
	ok, err = kv.KVGet([]byte("record"), &decoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, kvRecord{Name: "alpha", Count: 7}, decoded)
}

func TestKVStoreDeleteReadsAsAbsent(t *testing.T) {
	kv := NewKVStore(storage.NewMemDB())
	require.NoError(t, kv.KVPut([]byte("record"), kvRecord{Name: "alpha"}))
	require.NoError(t, kv.KVDelete([]byte("record")))

	ok, err := kv.KVGet([]byte("record"), &kvRecord{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVStoreListAppend(t *testing.T) {
	kv := NewKVStore(storage.NewMemDB())

	var list [][]byte
	require.NoError(t, kv.KVGetList([]byte("list"), &list))
	require.Empty(t, list)

	require.NoError(t, kv.KVAppend([]byte("list"), []byte("one")))
	require.NoError(t, kv.KVAppend([]byte("list"), []byte("two")))
	require.NoError(t, kv.KVGetList([]byte("list"), &list))
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, list)
}
