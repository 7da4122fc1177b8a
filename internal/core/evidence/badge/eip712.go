package badge

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	// ErrSignatureMismatch 签名恢复出的地址不是声明的签名者
	ErrSignatureMismatch = errors.New("签名者不匹配")
	// ErrMalformedSignature 签名格式错误
	ErrMalformedSignature = errors.New("签名格式错误")
)

const evidencePrimaryType = "Evidence"

// Domain EIP-712 域
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// SignedEvidence 合约侧签名的证据字段
type SignedEvidence struct {
	CaseID         *big.Int
	ContentDigest  common.Hash
	RecipientsHash common.Hash
	Uploader       common.Address
	CID            string
}

// EvidenceTypedData 构造证据提交的 EIP-712 数据
func EvidenceTypedData(ev SignedEvidence, domain Domain) apitypes.TypedData {
	caseID := ev.CaseID
	if caseID == nil {
		caseID = new(big.Int)
	}
	chainID := domain.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			evidencePrimaryType: {
				{Name: "caseId", Type: "uint256"},
				{Name: "contentDigest", Type: "bytes32"},
				{Name: "recipientsHash", Type: "bytes32"},
				{Name: "uploader", Type: "address"},
				{Name: "cid", Type: "string"},
			},
		},
		PrimaryType: evidencePrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"caseId":         caseID.String(),
			"contentDigest":  ev.ContentDigest.Hex(),
			"recipientsHash": ev.RecipientsHash.Hex(),
			"uploader":       ev.Uploader.Hex(),
			"cid":            ev.CID,
		},
	}
}

// SignTypedData 对 EIP-712 数据签名，返回 65 字节签名（v 为 27/28）
func SignTypedData(priv *ecdsa.PrivateKey, td apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("计算 EIP-712 摘要失败: %w", err)
	}
	sig, err := crypto.Sign(hash, priv)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverTypedSigner 从签名恢复签名者地址，v 接受 0/1 与 27/28
func RecoverTypedSigner(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: 长度 %d", ErrMalformedSignature, len(sig))
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Address{}, fmt.Errorf("计算 EIP-712 摘要失败: %w", err)
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyTypedSignature 校验签名是否由 signer 给出
func VerifyTypedSignature(td apitypes.TypedData, sig []byte, signer common.Address) error {
	got, err := RecoverTypedSigner(td, sig)
	if err != nil {
		return err
	}
	if got != signer {
		return fmt.Errorf("%w: 期望 %s, 实际 %s", ErrSignatureMismatch, signer.Hex(), got.Hex())
	}
	return nil
}
