package envelope

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/clock"
)

func generateKeys(t *testing.T, n int) []*ecdsa.PrivateKey {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		k, err := gethcrypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = k
	}
	return keys
}

func publicKeys(keys []*ecdsa.PrivateKey) []*ecdsa.PublicKey {
	out := make([]*ecdsa.PublicKey, len(keys))
	for i, k := range keys {
		out[i] = &k.PublicKey
	}
	return out
}

func newTestService() *Service {
	return NewService(WithClock(clock.NewMockClock(time.UnixMilli(1_700_000_000_000))))
}

func TestSealOpenRoundTrip(t *testing.T) {
	svc := newTestService()
	keys := generateKeys(t, 3)
	plaintext := map[string]interface{}{"title": "租赁合同", "amount": 1200, "tags": []string{"a", "b"}}

	env, err := svc.Seal(plaintext, publicKeys(keys))
	require.NoError(t, err)

	assert.Equal(t, VersionCurrent, env.Version)
	assert.Equal(t, AlgoAES256GCM, env.Encryption.AES.Algo)
	assert.Len(t, env.Encryption.AES.IV, ivSize)
	assert.Len(t, env.Encryption.AES.Tag, tagSize)
	assert.Len(t, env.Recipients, 3)
	assert.Equal(t, int64(1_700_000_000_000), env.CreatedAt)

	wantDigest, err := canonical.Digest(plaintext)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, env.ContentDigest)

	want, err := canonical.Canonicalize(plaintext)
	require.NoError(t, err)

	for i, k := range keys {
		got, err := Open(env, k)
		require.NoError(t, err, "接收方 %d", i)
		assert.Equal(t, want, string(got))

		var decoded map[string]interface{}
		require.NoError(t, OpenInto(env, k, &decoded))
		assert.Equal(t, "租赁合同", decoded["title"])
	}
}

func TestSealIndependentRecipientBlobs(t *testing.T) {
	svc := newTestService()
	keys := generateKeys(t, 2)
	env, err := svc.Seal("x", publicKeys(keys))
	require.NoError(t, err)
	assert.NotEqual(t, env.Recipients[0].EncryptedKey, env.Recipients[1].EncryptedKey)
}

func TestSealDeduplicatesRecipients(t *testing.T) {
	svc := newTestService()
	keys := generateKeys(t, 1)
	env, err := svc.Seal("x", []*ecdsa.PublicKey{&keys[0].PublicKey, &keys[0].PublicKey})
	require.NoError(t, err)
	assert.Len(t, env.Recipients, 1)
}

func TestSealErrors(t *testing.T) {
	svc := newTestService()

	_, err := svc.Seal("x", nil)
	assert.ErrorIs(t, err, ErrNoRecipients)

	keys := generateKeys(t, 1)
	_, err = svc.Seal(func() {}, publicKeys(keys))
	assert.ErrorIs(t, err, canonical.ErrEncoding)

	_, err = svc.Seal("x", []*ecdsa.PublicKey{nil})
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestOpenFailures(t *testing.T) {
	svc := newTestService()
	keys := generateKeys(t, 2)
	outsider := generateKeys(t, 1)[0]

	env, err := svc.Seal(map[string]int{"a": 1}, publicKeys(keys))
	require.NoError(t, err)

	t.Run("未知接收方", func(t *testing.T) {
		_, err := Open(env, outsider)
		assert.ErrorIs(t, err, ErrUnknownRecipient)
	})

	t.Run("密文任意位翻转", func(t *testing.T) {
		for i := range env.Ciphertext {
			tampered := env.clone()
			tampered.Ciphertext[i] ^= 0x01
			_, err := Open(tampered, keys[0])
			require.ErrorIs(t, err, ErrDecryptionFailed, "byte %d", i)
		}
	})

	t.Run("认证标签篡改", func(t *testing.T) {
		tampered := env.clone()
		tampered.Encryption.AES.Tag[0] ^= 0x80
		_, err := Open(tampered, keys[0])
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("接收方密钥被替换", func(t *testing.T) {
		tampered := env.clone()
		tampered.Recipients[0].EncryptedKey = tampered.Recipients[1].EncryptedKey
		_, err := Open(tampered, keys[0])
		assert.ErrorIs(t, err, ErrDecryptionFailed)

		// 其他接收方不受影响
		_, err = Open(tampered, keys[1])
		assert.NoError(t, err)
	})

	t.Run("摘要篡改", func(t *testing.T) {
		tampered := env.clone()
		tampered.ContentDigest[0] ^= 0xff
		_, err := Open(tampered, keys[0])
		assert.ErrorIs(t, err, ErrIntegrity)
	})
}

func TestEncodeDecode(t *testing.T) {
	svc := newTestService()
	keys := generateKeys(t, 2)
	env, err := svc.Seal(map[string]string{"doc": "evidence"}, publicKeys(keys))
	require.NoError(t, err)

	data, err := Encode(env)
	require.NoError(t, err)

	var shape map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &shape))
	assert.EqualValues(t, 2, shape["version"])
	assert.Contains(t, shape, "encryption")
	assert.Contains(t, shape, "contentDigest")

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)

	got, err := Open(decoded, keys[1])
	require.NoError(t, err)
	assert.Equal(t, `{"doc":"evidence"}`, string(got))
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte(`{"version":9}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"version":2,"encryption":{"aes":{"algo":"AES-128-CBC"}}}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(&Envelope{Version: VersionLegacy})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

// buildLegacyEnvelope 按版本1方案构造历史信封文档
func buildLegacyEnvelope(t *testing.T, content interface{}, recipient *ecdsa.PublicKey, withDigest bool) []byte {
	t.Helper()
	canon, err := canonical.Canonicalize(content)
	require.NoError(t, err)

	symKey := make([]byte, 32)
	_, err = rand.Read(symKey)
	require.NoError(t, err)
	iv := make([]byte, 12)
	_, err = rand.Read(iv)
	require.NoError(t, err)
	gcm, err := newGCM(symKey)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, iv, []byte(canon), nil)

	ephem, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	shared, err := ecies.ImportECDSA(ephem).GenerateShared(ecies.ImportECDSAPublic(recipient), 16, 16)
	require.NoError(t, err)
	kek := sha256.Sum256(shared)
	kgcm, err := newGCM(kek[:])
	require.NoError(t, err)
	kiv := make([]byte, 12)
	_, err = rand.Read(kiv)
	require.NoError(t, err)
	wrapped := kgcm.Seal(nil, kiv, []byte(hex.EncodeToString(symKey)), nil)

	doc := map[string]interface{}{
		"version":    1,
		"ciphertext": base64.StdEncoding.EncodeToString(sealed[:len(sealed)-16]),
		"encryption": map[string]interface{}{"aes": map[string]string{
			"iv":   base64.StdEncoding.EncodeToString(iv),
			"tag":  base64.StdEncoding.EncodeToString(sealed[len(sealed)-16:]),
			"algo": "AES-256-GCM",
		}},
		"recipients": []map[string]interface{}{{
			"address": gethcrypto.PubkeyToAddress(*recipient).Hex(),
			"encryptedKey": map[string]string{
				"iv":             hex.EncodeToString(kiv),
				"ephemPublicKey": hex.EncodeToString(gethcrypto.FromECDSAPub(&ephem.PublicKey)),
				"ciphertext":     hex.EncodeToString(wrapped[:len(wrapped)-16]),
				"mac":            hex.EncodeToString(wrapped[len(wrapped)-16:]),
			},
		}},
		"createdAt": 1_690_000_000_000,
	}
	if withDigest {
		doc["contentDigest"] = canonical.Keccak256([]byte(canon)).Hex()
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestLegacyEnvelopeUpgrade(t *testing.T) {
	key := generateKeys(t, 1)[0]
	content := map[string]interface{}{"hello": "world", "ts": 1}

	for _, withDigest := range []bool{true, false} {
		data := buildLegacyEnvelope(t, content, &key.PublicKey, withDigest)
		env, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, VersionLegacy, env.Version)
		assert.Equal(t, int64(1_690_000_000_000), env.CreatedAt)

		got, err := Open(env, key)
		require.NoError(t, err)
		assert.Equal(t, `{"hello":"world","ts":1}`, string(got))
	}

	t.Run("历史摘要不一致", func(t *testing.T) {
		data := buildLegacyEnvelope(t, content, &key.PublicKey, true)
		env, err := Decode(data)
		require.NoError(t, err)
		env.ContentDigest = common.HexToHash("0x01")
		_, err = Open(env, key)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("历史信封不能直接写出或追加接收方", func(t *testing.T) {
		env, err := Decode(buildLegacyEnvelope(t, content, &key.PublicKey, true))
		require.NoError(t, err)
		_, err = Encode(env)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
		_, err = newTestService().Reshare(env, key, publicKeys(generateKeys(t, 1)))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})
}

func TestLegacyPlaceholderRecipient(t *testing.T) {
	doc := `{
		"ciphertext": "aGVsbG8=",
		"recipients": [{"address": "0x0000000000000000000000000000000000000001", "encryptedKey": {"ciphertext": "legacy"}}],
		"encryption": {"aes": {"iv": "AAAAAAAAAAAAAAAA", "tag": "AAAAAAAAAAAAAAAAAAAAAA==", "algo": "AES-256-GCM"}}
	}`
	env, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, VersionLegacy, env.Version)
	require.Len(t, env.Recipients, 1)
	assert.Empty(t, env.Recipients[0].EncryptedKey)

	key := generateKeys(t, 1)[0]
	env.Recipients[0].Address = gethcrypto.PubkeyToAddress(key.PublicKey)
	_, err = Open(env, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestReshare(t *testing.T) {
	svc := newTestService()
	keys := generateKeys(t, 2)
	newcomer := generateKeys(t, 1)[0]

	env, err := svc.Seal(map[string]int{"a": 1}, publicKeys(keys))
	require.NoError(t, err)

	shared, err := svc.Reshare(env, keys[0], []*ecdsa.PublicKey{&newcomer.PublicKey, &keys[1].PublicKey})
	require.NoError(t, err)

	assert.Len(t, env.Recipients, 2, "原信封不被修改")
	assert.Len(t, shared.Recipients, 3, "已存在的接收方不会重复")
	assert.Equal(t, env.ContentDigest, shared.ContentDigest)
	assert.Equal(t, env.Ciphertext, shared.Ciphertext)

	got, err := Open(shared, newcomer)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	_, err = svc.Reshare(env, newcomer, publicKeys(keys))
	assert.ErrorIs(t, err, ErrUnknownRecipient)
}

type staticResolver map[common.Address]*ecdsa.PublicKey

func (r staticResolver) PublicKey(_ context.Context, addr common.Address) (*ecdsa.PublicKey, error) {
	if pub, ok := r[addr]; ok {
		return pub, nil
	}
	return nil, errors.New("not found")
}

func TestSealFor(t *testing.T) {
	keys := generateKeys(t, 2)
	resolver := staticResolver{}
	var addrs []common.Address
	for _, k := range keys {
		addr := gethcrypto.PubkeyToAddress(k.PublicKey)
		resolver[addr] = &k.PublicKey
		addrs = append(addrs, addr)
	}

	svc := NewService(WithResolver(resolver))
	env, err := svc.SealFor(context.Background(), "证据", addrs)
	require.NoError(t, err)
	assert.ElementsMatch(t, addrs, env.Addresses())

	_, err = svc.SealFor(context.Background(), "证据", []common.Address{common.HexToAddress("0x02")})
	assert.Error(t, err)

	_, err = NewService().SealFor(context.Background(), "证据", addrs)
	assert.Error(t, err)
}

func TestParsePublicKey(t *testing.T) {
	key := generateKeys(t, 1)[0]
	uncompressed := gethcrypto.FromECDSAPub(&key.PublicKey)
	compressed := gethcrypto.CompressPubkey(&key.PublicKey)

	for name, input := range map[string][]byte{
		"65字节": uncompressed,
		"64字节": uncompressed[1:],
		"33字节": compressed,
	} {
		t.Run(name, func(t *testing.T) {
			pub, err := ParsePublicKey(input)
			require.NoError(t, err)
			assert.Equal(t, gethcrypto.PubkeyToAddress(key.PublicKey), gethcrypto.PubkeyToAddress(*pub))
		})
	}

	_, err := ParsePublicKey([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}
