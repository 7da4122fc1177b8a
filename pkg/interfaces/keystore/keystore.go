// Package keystore 定义接收方公钥解析接口
package keystore

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
)

// Resolver 把地址解析为当前公钥
type Resolver interface {
	PublicKey(ctx context.Context, addr common.Address) (*ecdsa.PublicKey, error)
}
