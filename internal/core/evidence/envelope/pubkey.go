package envelope

import (
	"crypto/ecdsa"
	"fmt"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ParsePublicKey 解析 secp256k1 公钥
//
// 支持的格式：
//   - 33字节压缩公钥
//   - 64字节未压缩公钥（无前缀）
//   - 65字节未压缩公钥（0x04前缀）
//
// 返回的公钥使用 go-ethereum 的曲线实现，可直接用于 ECIES。
func ParsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	raw, err := normalizePublicKey(b)
	if err != nil {
		return nil, err
	}
	pub, err := gethcrypto.UnmarshalPubkey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// normalizePublicKey 统一转换为65字节未压缩格式
func normalizePublicKey(b []byte) ([]byte, error) {
	switch len(b) {
	case 33:
		pub, err := gethcrypto.DecompressPubkey(b)
		if err != nil {
			return nil, fmt.Errorf("%w: 解压缩失败: %v", ErrInvalidPublicKey, err)
		}
		return gethcrypto.FromECDSAPub(pub), nil
	case 64:
		out := make([]byte, 65)
		out[0] = 0x04
		copy(out[1:], b)
		return out, nil
	case 65:
		if b[0] != 0x04 {
			return nil, fmt.Errorf("%w: 65字节公钥必须以0x04开头", ErrInvalidPublicKey)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: 长度 %d", ErrInvalidPublicKey, len(b))
	}
}
