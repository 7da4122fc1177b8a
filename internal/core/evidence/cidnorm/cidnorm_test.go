package cidnorm

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cidV0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

// cidV1 同一内容的 v1 形式
var cidV1 = func() string {
	c, err := cid.Decode(cidV0)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(cid.DagProtobuf, c.Hash()).String()
}()

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "空串", raw: "", ok: false},
		{name: "只有空白", raw: "   ", ok: false},
		{name: "只有前缀", raw: "ipfs://", ok: false},
		{name: "v0转v1", raw: cidV0, want: cidV1, ok: true},
		{name: "v1保持不变", raw: cidV1, want: cidV1, ok: true},
		{name: "ipfs协议前缀", raw: "ipfs://" + cidV0, want: cidV1, ok: true},
		{name: "helia协议前缀", raw: "helia://" + cidV1, want: cidV1, ok: true},
		{name: "网关路径", raw: "https://gateway.example/ipfs/" + cidV0 + "/evidence.json?download=1", want: cidV1, ok: true},
		{name: "URL编码", raw: "ipfs%3A%2F%2F" + cidV0, want: cidV1, ok: true},
		{name: "首尾空白", raw: "  " + cidV1 + "\n", want: cidV1, ok: true},
		{name: "大写base32", raw: strings.ToUpper(cidV1), want: cidV1, ok: true},
		{name: "降级模式", raw: "  not-a-cid  ", want: "not-a-cid", ok: true},
		{name: "降级保留普通URL", raw: "https://example.com/file", want: "https://example.com/file", ok: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Normalize(tc.raw)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		cidV0,
		"ipfs://ipfs/" + cidV0,
		"https://x/ipfs/" + cidV1 + "/a/b",
		"%2525zz",
		"garbage value",
		"ipfs%252F" + cidV0,
	}
	for _, in := range inputs {
		once, ok := Normalize(in)
		require.True(t, ok, in)
		twice, ok := Normalize(once)
		require.True(t, ok, in)
		assert.Equal(t, once, twice, in)
	}
}

func TestEqualAndHash(t *testing.T) {
	assert.True(t, Equal(cidV0, "ipfs://"+cidV1))
	assert.False(t, Equal("", ""))
	assert.False(t, Equal(cidV0, "other"))

	h := Hash("ipfs://" + cidV0)
	require.NotNil(t, h)
	assert.Equal(t, crypto.Keccak256Hash([]byte(cidV1)), *h)
	assert.Nil(t, Hash(" "))
}

func TestForBytes(t *testing.T) {
	c := ForBytes([]byte("hello"))
	// raw + sha2-256 的 CIDv1 以 bafkrei 开头
	assert.Contains(t, c, "bafkrei")
	n, ok := Normalize(c)
	require.True(t, ok)
	assert.Equal(t, c, n)
	assert.NotEqual(t, c, ForBytes([]byte("hello!")))
}
