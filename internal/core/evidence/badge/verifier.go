package badge

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/cidnorm"
	logpkg "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
)

// Fetcher 按 CID 取回密文或明文
type Fetcher interface {
	Get(ctx context.Context, cid string) ([]byte, error)
}

// Observer 接收徽章变化，先收到 Pending 再收到最终结果
type Observer func(Badge)

// Request 一次校验请求
type Request struct {
	CID           string
	ClaimedDigest common.Hash
	Encrypted     bool
	ViewerKey     *ecdsa.PrivateKey

	Signature []byte
	Signer    common.Address
	TypedData *apitypes.TypedData
}

// Result 校验结果
type Result struct {
	Badge     Badge
	ActualCID string
	Reason    error
}

// Verifier 从存储取回证据并分类
type Verifier struct {
	fetcher Fetcher
	logger  log.Logger
}

// NewVerifier 创建校验器
func NewVerifier(fetcher Fetcher, logger log.Logger) *Verifier {
	return &Verifier{fetcher: fetcher, logger: logpkg.OrNop(logger)}
}

// Verify 取回并校验证据，observer 可为 nil
func (v *Verifier) Verify(ctx context.Context, req Request, observer Observer) Result {
	notify := func(b Badge) {
		if observer != nil {
			observer(b)
		}
	}
	notify(Pending)

	data, err := v.fetcher.Get(ctx, req.CID)
	in := Input{
		FetchErr:      err,
		Fetched:       data,
		ClaimedDigest: req.ClaimedDigest,
		ClaimedCID:    req.CID,
		Signature:     req.Signature,
		Signer:        req.Signer,
		TypedData:     req.TypedData,
		Encrypted:     req.Encrypted,
		ViewerKey:     req.ViewerKey,
	}
	var actual string
	if err == nil {
		actual = cidnorm.ForBytes(data)
		in.ActualCID = actual
	}

	b, reason := ClassifyWithReason(in)
	if b.IsTrustWarning() || b == Error || b == FetchFailed {
		v.logger.Warnf("证据校验未通过: cid=%s badge=%s reason=%v", req.CID, b, reason)
	} else {
		v.logger.Debugf("证据校验完成: cid=%s badge=%s", req.CID, b)
	}
	notify(b)
	return Result{Badge: b, ActualCID: actual, Reason: reason}
}
