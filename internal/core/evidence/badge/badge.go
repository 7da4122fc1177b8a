// Package badge 对取回的证据重新计算摘要并给出校验徽章
//
// 检查按固定顺序短路执行：取回失败、CID 不一致、内容不一致、签名无效、
// 解密失败、解密成功，全部通过时为 verified。
package badge

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/cidnorm"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/envelope"
)

// Badge 校验徽章，派生值，不作为持久化事实
type Badge string

const (
	Verified        Badge = "verified"
	CIDMismatch     Badge = "cid-mismatch"
	ContentMismatch Badge = "content-mismatch"
	SigInvalid      Badge = "sig-invalid"
	FetchFailed     Badge = "fetch-failed"
	Error           Badge = "error"
	Pending         Badge = "pending"
	Encrypted       Badge = "encrypted"
	EncryptOK       Badge = "encrypt-ok"
	EncryptFail     Badge = "encrypt-fail"
)

// IsTrustWarning 是否需要向终端用户显示信任警告
func (b Badge) IsTrustWarning() bool {
	switch b {
	case ContentMismatch, SigInvalid, CIDMismatch:
		return true
	}
	return false
}

// Input 分类所需的全部输入
type Input struct {
	// FetchErr 非空表示取回失败
	FetchErr error
	// Fetched 取回的原始字节；加密证据为信封 JSON
	Fetched []byte

	ClaimedDigest common.Hash
	ClaimedCID    string
	// ActualCID 为空时按 Fetched 计算
	ActualCID string

	// Signature 非空时校验 EIP-712 签名
	Signature []byte
	Signer    common.Address
	TypedData *apitypes.TypedData

	// Encrypted 表示 Fetched 是加密信封
	Encrypted bool
	// ViewerKey 查看者私钥，为空时只能给出 encrypted
	ViewerKey *ecdsa.PrivateKey
}

// Classify 计算徽章，内部异常统一归为 Error
func Classify(in Input) (b Badge) {
	b, _ = ClassifyWithReason(in)
	return b
}

// ClassifyWithReason 计算徽章并返回导致该结果的错误（verified/encrypt-ok/encrypted 时为 nil）
func ClassifyWithReason(in Input) (b Badge, reason error) {
	defer func() {
		if r := recover(); r != nil {
			b, reason = Error, fmt.Errorf("校验过程异常: %v", r)
		}
	}()

	if in.FetchErr != nil {
		return FetchFailed, in.FetchErr
	}

	actual := in.ActualCID
	if actual == "" {
		actual = cidnorm.ForBytes(in.Fetched)
	}
	if in.ClaimedCID != "" && !cidnorm.Equal(in.ClaimedCID, actual) {
		return CIDMismatch, fmt.Errorf("CID 不一致: 声明 %s, 实际 %s", in.ClaimedCID, actual)
	}

	var env *envelope.Envelope
	if in.Encrypted {
		decoded, err := envelope.Decode(in.Fetched)
		if err != nil {
			return Error, err
		}
		env = decoded
		if env.ContentDigest != in.ClaimedDigest {
			return ContentMismatch, fmt.Errorf("信封摘要 %s 与声明 %s 不一致",
				env.ContentDigest.Hex(), in.ClaimedDigest.Hex())
		}
	} else {
		got := digestContent(in.Fetched)
		if got != in.ClaimedDigest {
			return ContentMismatch, fmt.Errorf("内容摘要 %s 与声明 %s 不一致", got.Hex(), in.ClaimedDigest.Hex())
		}
	}

	if len(in.Signature) > 0 {
		if in.TypedData == nil {
			return Error, errors.New("提供了签名但缺少 EIP-712 数据")
		}
		if err := VerifyTypedSignature(*in.TypedData, in.Signature, in.Signer); err != nil {
			if errors.Is(err, ErrSignatureMismatch) || errors.Is(err, ErrMalformedSignature) {
				return SigInvalid, err
			}
			return Error, err
		}
	}

	if env != nil {
		if in.ViewerKey == nil {
			return Encrypted, nil
		}
		if _, err := envelope.Open(env, in.ViewerKey); err != nil {
			if errors.Is(err, envelope.ErrIntegrity) {
				return ContentMismatch, err
			}
			return EncryptFail, err
		}
		return EncryptOK, nil
	}
	return Verified, nil
}

// digestContent JSON 内容走规范化摘要，其他字节直接 keccak256
func digestContent(data []byte) common.Hash {
	if h, err := canonical.DigestJSON(data); err == nil {
		return h
	}
	return canonical.DigestBytes(data)
}
