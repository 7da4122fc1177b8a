// Package canonical 提供规范化 JSON 序列化与 keccak256 内容摘要
//
// 规范化规则：
//   - 每一层对象的键按字典序排序（与 UTF-16 码元顺序一致）
//   - 数组保持原有顺序
//   - 基本类型按 JSON 字面量规则输出，字符串不做 HTML 转义
//   - nil 输出为 null
//
// 缺失字段与值为 null 的字段产生不同的摘要，调用方如需等价处理必须自行预先归一化。
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// ErrEncoding 值无法规范化（循环引用、函数、通道、NaN 等）
var ErrEncoding = errors.New("无法规范化编码")

// Canonicalize 返回 v 的规范化 JSON 文本
//
// Go 值先经 encoding/json 投影（结构体标签生效），json.RawMessage 与 []byte 以外的类型都走这条路径。
func Canonicalize(v interface{}) (string, error) {
	tree, err := project(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, tree); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CanonicalizeJSON 规范化一段 JSON 文本
func CanonicalizeJSON(raw []byte) (string, error) {
	tree, err := parse(raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, tree); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Digest 计算 keccak256(utf8(Canonicalize(v)))
func Digest(v interface{}) (common.Hash, error) {
	s, err := Canonicalize(v)
	if err != nil {
		return common.Hash{}, err
	}
	return Keccak256([]byte(s)), nil
}

// DigestJSON 计算 JSON 文本的规范化摘要
func DigestJSON(raw []byte) (common.Hash, error) {
	s, err := CanonicalizeJSON(raw)
	if err != nil {
		return common.Hash{}, err
	}
	return Keccak256([]byte(s)), nil
}

// DigestBytes 计算任意取回内容的摘要
//
// 合法 JSON 按规范化摘要计算；其他内容（纯文本证据）直接对原始字节做 keccak256。
func DigestBytes(b []byte) common.Hash {
	if json.Valid(b) {
		if h, err := DigestJSON(b); err == nil {
			return h
		}
	}
	return Keccak256(b)
}

// Keccak256 计算多段数据拼接后的 Legacy Keccak-256
func Keccak256(parts ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

func project(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return parse(x)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return parse(raw)
}

func parse(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: JSON 文本包含多个值", ErrEncoding)
	}
	return out, nil
}

func writeValue(buf *bytes.Buffer, v interface{}) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		s, err := formatNumber(x)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case string:
		writeString(buf, x)
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessUTF16(keys[i], keys[j]) })
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeValue(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: 未知类型 %T", ErrEncoding, v)
	}
	return nil
}

// formatNumber 整数字面量原样保留，其余数值按 ES6 数字格式输出（1.0 → 1，1e2 → 100）
func formatNumber(n json.Number) (string, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if s == "-0" {
			return "0", nil
		}
		return s, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("%w: 非法数值 %s", ErrEncoding, s)
	}
	// 负零与零同值
	if f == 0 {
		return "0", nil
	}
	out, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return string(out), nil
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// Encode 只会因不支持的类型失败，字符串不会
	_ = enc.Encode(s)
	// 去掉 Encoder 追加的换行
	buf.Truncate(buf.Len() - 1)
}

func lessUTF16(a, b string) bool {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
