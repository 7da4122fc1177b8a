package envelope

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

const (
	legacyEphemSize  = 65
	legacyHeaderSize = ivSize + legacyEphemSize + tagSize
)

// unwrapLegacyKey 解封版本1接收方密钥
//
// 版本1方案：ECDH 共享点 x 坐标 → SHA-256 作为 AES-256-GCM 密钥，
// 被加密的内容是对称密钥的十六进制字符串。
func unwrapLegacyKey(packed []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	if len(packed) < legacyHeaderSize {
		return nil, errors.New("历史密钥对象缺失或不完整")
	}
	iv := packed[:ivSize]
	ephemBytes := packed[ivSize : ivSize+legacyEphemSize]
	mac := packed[ivSize+legacyEphemSize : legacyHeaderSize]
	ct := packed[legacyHeaderSize:]

	ephem, err := gethcrypto.UnmarshalPubkey(ephemBytes)
	if err != nil {
		return nil, fmt.Errorf("临时公钥无效: %w", err)
	}
	kek, err := legacyKEK(priv, ephem)
	if err != nil {
		return nil, err
	}
	defer wipe(kek)

	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, mac...)
	pt, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, errors.New("历史密钥认证失败")
	}
	return parseLegacySymKey(pt)
}

// legacyKEK 计算 sha256(ECDH x 坐标)
func legacyKEK(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	shared, err := ecies.ImportECDSA(priv).GenerateShared(ecies.ImportECDSAPublic(pub), 16, 16)
	if err != nil {
		return nil, fmt.Errorf("ECDH 失败: %w", err)
	}
	sum := sha256.Sum256(shared)
	wipe(shared)
	return sum[:], nil
}

func parseLegacySymKey(pt []byte) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimSpace(string(pt)), "0x")
	if len(s) == 2*keySize {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	if len(pt) == keySize {
		return append([]byte(nil), pt...), nil
	}
	return nil, fmt.Errorf("历史对称密钥格式无法识别（%d 字节）", len(pt))
}
