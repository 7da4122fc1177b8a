package badge

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/cidnorm"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/envelope"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/storage/blob"
)

var testDomain = Domain{
	Name:              "TemplateRentContract",
	Version:           "1",
	ChainID:           big.NewInt(31337),
	VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func plainInput(t *testing.T) Input {
	t.Helper()
	fetched := []byte(`{"b":2,"a":1}`)
	digest, err := canonical.Digest(map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	return Input{
		Fetched:       fetched,
		ClaimedDigest: digest,
		ClaimedCID:    "ipfs://" + cidnorm.ForBytes(fetched),
	}
}

func TestClassifyPlain(t *testing.T) {
	t.Run("全部通过", func(t *testing.T) {
		assert.Equal(t, Verified, Classify(plainInput(t)))
	})

	t.Run("取回失败优先", func(t *testing.T) {
		in := plainInput(t)
		in.FetchErr = errors.New("timeout")
		in.ClaimedCID = "bogus"
		assert.Equal(t, FetchFailed, Classify(in))
	})

	t.Run("CID不一致先于内容检查", func(t *testing.T) {
		in := plainInput(t)
		in.ClaimedCID = cidnorm.ForBytes([]byte("something else"))
		in.ClaimedDigest = common.Hash{1}
		assert.Equal(t, CIDMismatch, Classify(in))
	})

	t.Run("显式提供实际CID", func(t *testing.T) {
		in := plainInput(t)
		in.ActualCID = cidnorm.ForBytes([]byte("replaced"))
		assert.Equal(t, CIDMismatch, Classify(in))
	})

	t.Run("内容被修改", func(t *testing.T) {
		in := plainInput(t)
		in.ClaimedDigest = canonical.Keccak256([]byte("original"))
		b, reason := ClassifyWithReason(in)
		assert.Equal(t, ContentMismatch, b)
		assert.Error(t, reason)
	})

	t.Run("非JSON内容按原始字节摘要", func(t *testing.T) {
		data := []byte{0xff, 0x00, 0x01}
		in := Input{Fetched: data, ClaimedDigest: canonical.DigestBytes(data)}
		assert.Equal(t, Verified, Classify(in))
	})
}

func TestClassifySignature(t *testing.T) {
	signer := mustKey(t)
	in := plainInput(t)
	td := EvidenceTypedData(SignedEvidence{
		CaseID:        big.NewInt(7),
		ContentDigest: in.ClaimedDigest,
		Uploader:      crypto.PubkeyToAddress(signer.PublicKey),
		CID:           in.ClaimedCID,
	}, testDomain)

	sig, err := SignTypedData(signer, td)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	t.Run("签名有效", func(t *testing.T) {
		in := in
		in.Signature, in.Signer, in.TypedData = sig, crypto.PubkeyToAddress(signer.PublicKey), &td
		assert.Equal(t, Verified, Classify(in))
	})

	t.Run("签名者不符", func(t *testing.T) {
		in := in
		in.Signature, in.Signer, in.TypedData = sig, crypto.PubkeyToAddress(mustKey(t).PublicKey), &td
		b := Classify(in)
		assert.Equal(t, SigInvalid, b)
		assert.True(t, b.IsTrustWarning())
	})

	t.Run("签名格式错误", func(t *testing.T) {
		in := in
		in.Signature, in.Signer, in.TypedData = sig[:10], crypto.PubkeyToAddress(signer.PublicKey), &td
		assert.Equal(t, SigInvalid, Classify(in))
	})

	t.Run("内容不一致先于签名检查", func(t *testing.T) {
		in := in
		in.ClaimedDigest = common.Hash{9}
		in.Signature, in.Signer, in.TypedData = sig[:10], crypto.PubkeyToAddress(signer.PublicKey), &td
		assert.Equal(t, ContentMismatch, Classify(in))
	})

	t.Run("v值为0或1也可恢复", func(t *testing.T) {
		raw := append([]byte(nil), sig...)
		raw[64] -= 27
		got, err := RecoverTypedSigner(td, raw)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(signer.PublicKey), got)
	})

	t.Run("缺少EIP-712数据", func(t *testing.T) {
		in := in
		in.Signature = sig
		assert.Equal(t, Error, Classify(in))
	})
}

func TestClassifyEncrypted(t *testing.T) {
	viewer := mustKey(t)
	stranger := mustKey(t)
	svc := envelope.NewService()
	env, err := svc.Seal(map[string]interface{}{"a": 1, "b": 2}, []*ecdsa.PublicKey{&viewer.PublicKey})
	require.NoError(t, err)
	data, err := envelope.Encode(env)
	require.NoError(t, err)

	base := Input{Fetched: data, ClaimedDigest: env.ContentDigest, Encrypted: true}

	t.Run("无查看者密钥", func(t *testing.T) {
		assert.Equal(t, Encrypted, Classify(base))
	})

	t.Run("解密成功", func(t *testing.T) {
		in := base
		in.ViewerKey = viewer
		assert.Equal(t, EncryptOK, Classify(in))
	})

	t.Run("非接收方", func(t *testing.T) {
		in := base
		in.ViewerKey = stranger
		assert.Equal(t, EncryptFail, Classify(in))
	})

	t.Run("声明摘要与信封不符", func(t *testing.T) {
		in := base
		in.ClaimedDigest = common.Hash{3}
		in.ViewerKey = viewer
		assert.Equal(t, ContentMismatch, Classify(in))
	})

	t.Run("密文被篡改", func(t *testing.T) {
		tampered := *env
		tampered.Ciphertext = append([]byte(nil), env.Ciphertext...)
		tampered.Ciphertext[0] ^= 0x01
		raw, err := envelope.Encode(&tampered)
		require.NoError(t, err)
		in := Input{Fetched: raw, ClaimedDigest: env.ContentDigest, Encrypted: true, ViewerKey: viewer}
		assert.Equal(t, EncryptFail, Classify(in))
	})

	t.Run("不是信封", func(t *testing.T) {
		in := Input{Fetched: []byte("plain"), Encrypted: true}
		assert.Equal(t, Error, Classify(in))
	})
}

func TestIsTrustWarning(t *testing.T) {
	for _, b := range []Badge{ContentMismatch, SigInvalid, CIDMismatch} {
		assert.True(t, b.IsTrustWarning(), string(b))
	}
	for _, b := range []Badge{Verified, Pending, Encrypted, EncryptOK, EncryptFail, FetchFailed, Error} {
		assert.False(t, b.IsTrustWarning(), string(b))
	}
}

func TestVerifier(t *testing.T) {
	ctx := context.Background()
	store, err := blob.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer store.Close()

	content := []byte(`{"doc":"lease.pdf","sha":"abc"}`)
	id, err := store.Put(ctx, content)
	require.NoError(t, err)
	digest, err := canonical.DigestJSON(content)
	require.NoError(t, err)

	v := NewVerifier(store, nil)

	t.Run("先报告pending再报告结果", func(t *testing.T) {
		var seen []Badge
		res := v.Verify(ctx, Request{CID: id, ClaimedDigest: digest}, func(b Badge) { seen = append(seen, b) })
		assert.Equal(t, Verified, res.Badge)
		assert.Equal(t, id, res.ActualCID)
		assert.Equal(t, []Badge{Pending, Verified}, seen)
	})

	t.Run("取回失败", func(t *testing.T) {
		res := v.Verify(ctx, Request{CID: cidnorm.ForBytes([]byte("missing")), ClaimedDigest: digest}, nil)
		assert.Equal(t, FetchFailed, res.Badge)
		assert.ErrorIs(t, res.Reason, blob.ErrNotFound)
	})
}
