// Package keystore 把接收方地址解析为当前公钥
//
// 所有解析器都会校验公钥能推导回请求的地址，防止存储被篡改后把密钥封装给错误的人。
package keystore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/envelope"
)

var (
	// ErrKeyNotFound 地址没有登记公钥
	ErrKeyNotFound = errors.New("未找到接收方公钥")
	// ErrKeyMismatch 公钥推导出的地址与请求地址不一致
	ErrKeyMismatch = errors.New("公钥与地址不匹配")
)

// decodeKey 解析十六进制公钥并校验地址
func decodeKey(addr common.Address, hexKey string) (*ecdsa.PublicKey, error) {
	s := strings.TrimSpace(hexKey)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", envelope.ErrInvalidPublicKey, addr.Hex(), err)
	}
	pub, err := envelope.ParsePublicKey(raw)
	if err != nil {
		return nil, err
	}
	if got := crypto.PubkeyToAddress(*pub); got != addr {
		return nil, fmt.Errorf("%w: 请求 %s, 公钥对应 %s", ErrKeyMismatch, addr.Hex(), got.Hex())
	}
	return pub, nil
}

// EncodeKey 把公钥编码为 65 字节未压缩格式的十六进制
func EncodeKey(pub *ecdsa.PublicKey) string {
	return hexutil.Encode(crypto.FromECDSAPub(pub))
}

// fieldFor 存储中统一使用小写地址作为键
func fieldFor(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
