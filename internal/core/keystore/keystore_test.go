package keystore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	keystoreconfig "github.com/weisyn/evidence-anchor/internal/config/keystore"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func TestFileResolver(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "recipient_pubkeys.json")
	r := NewFileResolver(path)
	alice := newKey(t)
	aliceAddr := crypto.PubkeyToAddress(alice.PublicKey)

	t.Run("文件不存在时未找到", func(t *testing.T) {
		_, err := r.PublicKey(ctx, aliceAddr)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("登记后可解析", func(t *testing.T) {
		addr, err := r.Register(&alice.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, aliceAddr, addr)

		pub, err := r.PublicKey(ctx, aliceAddr)
		require.NoError(t, err)
		assert.Equal(t, aliceAddr, crypto.PubkeyToAddress(*pub))
	})

	t.Run("接受压缩公钥与大小写混合的地址键", func(t *testing.T) {
		bob := newKey(t)
		bobAddr := crypto.PubkeyToAddress(bob.PublicKey)
		content := `{"` + bobAddr.Hex() + `":"` + hexutil.Encode(crypto.CompressPubkey(&bob.PublicKey))[2:] + `"}`
		p := filepath.Join(t.TempDir(), "keys.json")
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

		pub, err := NewFileResolver(p).PublicKey(ctx, bobAddr)
		require.NoError(t, err)
		assert.Equal(t, bobAddr, crypto.PubkeyToAddress(*pub))
	})

	t.Run("公钥与地址不匹配", func(t *testing.T) {
		mallory := newKey(t)
		content := `{"` + aliceAddr.Hex() + `":"` + EncodeKey(&mallory.PublicKey) + `"}`
		p := filepath.Join(t.TempDir(), "keys.json")
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

		_, err := NewFileResolver(p).PublicKey(ctx, aliceAddr)
		assert.ErrorIs(t, err, ErrKeyMismatch)
	})

	t.Run("文件损坏", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "keys.json")
		require.NoError(t, os.WriteFile(p, []byte("{"), 0o600))
		_, err := NewFileResolver(p).PublicKey(ctx, aliceAddr)
		assert.Error(t, err)
	})
}

type fakeHash struct {
	mu     sync.Mutex
	data   map[string]map[string]string
	gets   int
	err    error
	closed bool
}

func newFakeHash() *fakeHash {
	return &fakeHash{data: map[string]map[string]string{}}
}

func (f *fakeHash) HGet(ctx context.Context, key, field string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.data[key][field]
	if !ok {
		return "", errFieldMissing
	}
	return v, nil
}

func (f *fakeHash) HSet(ctx context.Context, key, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[key] == nil {
		f.data[key] = map[string]string{}
	}
	f.data[key][field] = value
	return nil
}

func (f *fakeHash) Close() error {
	f.closed = true
	return nil
}

func TestRedisResolver(t *testing.T) {
	ctx := context.Background()
	hash := newFakeHash()
	r := newRedisResolver(hash, "evidence:recipient_pubkeys")
	alice := newKey(t)
	aliceAddr := crypto.PubkeyToAddress(alice.PublicKey)

	_, err := r.PublicKey(ctx, aliceAddr)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = r.Register(ctx, &alice.PublicKey)
	require.NoError(t, err)
	pub, err := r.PublicKey(ctx, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, aliceAddr, crypto.PubkeyToAddress(*pub))

	hash.err = errors.New("connection refused")
	_, err = r.PublicKey(ctx, aliceAddr)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, r.Close())
	assert.True(t, hash.closed)
}

func TestCachedResolver(t *testing.T) {
	ctx := context.Background()
	hash := newFakeHash()
	inner := newRedisResolver(hash, "k")
	alice := newKey(t)
	aliceAddr := crypto.PubkeyToAddress(alice.PublicKey)
	_, err := inner.Register(ctx, &alice.PublicKey)
	require.NoError(t, err)

	r, err := NewCachedResolver(inner, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 3; i++ {
		pub, err := r.PublicKey(ctx, aliceAddr)
		require.NoError(t, err)
		assert.Equal(t, aliceAddr, crypto.PubkeyToAddress(*pub))
	}
	assert.Equal(t, 1, hash.gets, "命中缓存后不再访问后端")

	r.Invalidate(aliceAddr)
	_, err = r.PublicKey(ctx, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, hash.gets)

	// 未找到的结果不缓存
	bob := crypto.PubkeyToAddress(newKey(t).PublicKey)
	for i := 0; i < 2; i++ {
		_, err := r.PublicKey(ctx, bob)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
	assert.Equal(t, 4, hash.gets)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	opts := keystoreconfig.New(dir, nil).GetOptions()
	r, err := Open(context.Background(), opts)
	require.NoError(t, err)
	_, err = r.PublicKey(context.Background(), crypto.PubkeyToAddress(newKey(t).PublicKey))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	require.NoError(t, r.Close())

	disabled := false
	opts = keystoreconfig.New(dir, &types.UserKeystoreConfig{CacheEnabled: &disabled}).GetOptions()
	r, err = Open(context.Background(), opts)
	require.NoError(t, err)
	assert.IsType(t, nopCloser{}, r)

	opts.Backend = "ldap"
	_, err = Open(context.Background(), opts)
	assert.Error(t, err)
}
