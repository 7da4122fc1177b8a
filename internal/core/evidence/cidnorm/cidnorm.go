// Package cidnorm 把各种形式的内容标识符（CID）规范化为可比较的单一形式
//
// 可解析的 CID 统一转换为 v1 + base32 小写；无法解析时降级为去掉前缀和空白的原串，
// 降级不是错误，很多调用方只需要稳定的去重键。
package cidnorm

import (
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// 前缀剥离与 URL 解码迭代到不动点的最大轮数
const maxPasses = 64

var schemePrefixes = []string{"ipfs://", "helia://", "ipfs/"}

// Normalize 规范化 CID 字符串
//
// 返回值：
//   - string: 规范化结果（可解析时为 CIDv1 base32，否则为降级字符串）
//   - bool: 输入为空（或只剩前缀）时为 false
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	for i := 0; i < maxPasses; i++ {
		next := stripOnce(s)
		if next == s {
			break
		}
		s = next
	}
	if s == "" {
		return "", false
	}

	if c, err := cid.Decode(s); err == nil {
		v1 := cid.NewCidV1(c.Type(), c.Hash())
		if out, err := v1.StringOfBase(multibase.Base32); err == nil {
			return out, true
		}
	}
	return s, true
}

// Equal 比较两个 CID 规范化后是否相同，任一为空即不相等
func Equal(a, b string) bool {
	na, okA := Normalize(a)
	nb, okB := Normalize(b)
	return okA && okB && na == nb
}

// Hash 返回 keccak256(Normalize(raw))，输入为空时返回 nil
func Hash(raw string) *common.Hash {
	n, ok := Normalize(raw)
	if !ok {
		return nil
	}
	h := crypto.Keccak256Hash([]byte(n))
	return &h
}

// ForBytes 计算数据的 CIDv1（raw 编解码 + sha2-256），以 base32 输出
func ForBytes(data []byte) string {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// sha2-256 是内置算法，不会失败
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, mh).String()
}

func stripOnce(s string) string {
	s = strings.TrimSpace(s)
	if dec, err := url.PathUnescape(s); err == nil {
		s = dec
	}

	lower := strings.ToLower(s)
	stripped := false
	if idx := strings.LastIndex(lower, "/ipfs/"); idx >= 0 {
		s = s[idx+len("/ipfs/"):]
		stripped = true
	} else {
		for _, p := range schemePrefixes {
			if strings.HasPrefix(lower, p) {
				s = s[len(p):]
				stripped = true
				break
			}
		}
	}

	// 只在剥离了 IPFS 前缀后才截掉 CID 之后的路径、查询串和片段
	if stripped {
		if i := strings.IndexAny(s, "/?#"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
