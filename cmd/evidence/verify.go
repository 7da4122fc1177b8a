package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/spf13/cobra"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/badge"
)

type signOutput struct {
	Signer    string             `json:"signer"`
	Signature string             `json:"signature"`
	TypedData apitypes.TypedData `json:"typedData"`
}

func newSignCmd(env *cliEnv) *cobra.Command {
	var (
		keyFile        string
		caseID         string
		digest         string
		recipientsHash string
		cid            string
		domainName     string
		domainVersion  string
		chainID        uint64
		contract       string
		outPath        string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "对证据提交生成 EIP-712 签名",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := new(big.Int).SetString(caseID, 10)
			if !ok {
				return fmt.Errorf("案件ID必须是十进制整数: %q", caseID)
			}
			contentDigest, err := parseHash(digest)
			if err != nil {
				return err
			}
			var rh common.Hash
			if recipientsHash != "" {
				if rh, err = parseHash(recipientsHash); err != nil {
					return err
				}
			}

			chainOpts := env.provider.GetChain()
			if chainID == 0 {
				chainID = chainOpts.ChainID
			}
			if contract == "" {
				contract = chainOpts.ContractAddress
			}
			if contract != "" && !common.IsHexAddress(contract) {
				return fmt.Errorf("无效合约地址: %q", contract)
			}

			key, err := env.loadPrivateKey(keyFile)
			if err != nil {
				return err
			}
			signer := crypto.PubkeyToAddress(key.PublicKey)

			td := badge.EvidenceTypedData(badge.SignedEvidence{
				CaseID:         id,
				ContentDigest:  contentDigest,
				RecipientsHash: rh,
				Uploader:       signer,
				CID:            cid,
			}, badge.Domain{
				Name:              domainName,
				Version:           domainVersion,
				ChainID:           new(big.Int).SetUint64(chainID),
				VerifyingContract: common.HexToAddress(contract),
			})
			sig, err := badge.SignTypedData(key, td)
			if err != nil {
				return err
			}

			out := signOutput{Signer: signer.Hex(), Signature: hexutil.Encode(sig), TypedData: td}
			if outPath != "" {
				data, err := json.MarshalIndent(td, "", "  ")
				if err != nil {
					return err
				}
				if err := env.writeOutput(outPath, append(data, '\n')); err != nil {
					return err
				}
			}
			return env.formatter.PrintKV([][2]string{
				{"签名者", out.Signer},
				{"签名", out.Signature},
			}, out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&keyFile, "key-file", "", "上传者私钥文件（- 为标准输入）")
	f.StringVar(&caseID, "case-id", "", "链上案件ID（十进制）")
	f.StringVar(&digest, "digest", "", "内容摘要")
	f.StringVar(&recipientsHash, "recipients-hash", "", "接收方集合哈希（默认全零）")
	f.StringVar(&cid, "cid", "", "证据 CID")
	f.StringVar(&domainName, "domain-name", "EvidenceRegistry", "EIP-712 域名称")
	f.StringVar(&domainVersion, "domain-version", "1", "EIP-712 域版本")
	f.Uint64Var(&chainID, "chain-id", 0, "链ID（默认取配置）")
	f.StringVar(&contract, "contract", "", "验证合约地址（默认取配置）")
	f.StringVar(&outPath, "out", "", "把 typedData 写入文件，供 verify --typed-data 使用")
	_ = cmd.MarkFlagRequired("case-id")
	_ = cmd.MarkFlagRequired("digest")
	return cmd
}

type verifyOutput struct {
	Badge        badge.Badge `json:"badge"`
	ActualCID    string      `json:"actualCid,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	TrustWarning bool        `json:"trustWarning"`
}

func newVerifyCmd(env *cliEnv) *cobra.Command {
	var (
		cid           string
		digest        string
		encrypted     bool
		keyFile       string
		signature     string
		signer        string
		typedDataPath string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "从密文存储取回证据并给出校验徽章",
		Long: `按顺序检查取回、CID、内容摘要、签名与信封解密，给出徽章：
verified | cid-mismatch | content-mismatch | sig-invalid | fetch-failed | error |
encrypted | encrypt-ok | encrypt-fail

出现信任警告（cid-mismatch、content-mismatch、sig-invalid、encrypt-fail）时以非零状态退出。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			claimed, err := parseHash(digest)
			if err != nil {
				return err
			}
			req := badge.Request{CID: cid, ClaimedDigest: claimed, Encrypted: encrypted}

			if encrypted && keyFile != "" {
				if req.ViewerKey, err = env.loadPrivateKey(keyFile); err != nil {
					return err
				}
			}
			if signature != "" {
				if req.Signature, err = hexBytes(signature); err != nil {
					return fmt.Errorf("签名格式无效: %w", err)
				}
				if !common.IsHexAddress(signer) {
					return fmt.Errorf("校验签名需要 --signer 地址")
				}
				req.Signer = common.HexToAddress(signer)
				if typedDataPath == "" {
					return fmt.Errorf("校验签名需要 --typed-data")
				}
				raw, err := env.readInput(typedDataPath)
				if err != nil {
					return err
				}
				var td apitypes.TypedData
				if err := json.Unmarshal(raw, &td); err != nil {
					return fmt.Errorf("解析 typedData 失败: %w", err)
				}
				req.TypedData = &td
			}

			store, err := env.openBlobStore()
			if err != nil {
				return err
			}
			defer store.Close()

			res := badge.NewVerifier(store, env.logger).Verify(cmd.Context(), req, func(b badge.Badge) {
				if b == badge.Pending {
					env.formatter.PrintInfo("正在校验 " + cid)
				}
			})
			out := verifyOutput{Badge: res.Badge, ActualCID: res.ActualCID, TrustWarning: res.Badge.IsTrustWarning()}
			if res.Reason != nil {
				out.Reason = res.Reason.Error()
			}
			if err := env.formatter.PrintKV([][2]string{
				{"徽章", string(out.Badge)},
				{"实际CID", out.ActualCID},
				{"原因", out.Reason},
			}, out); err != nil {
				return err
			}
			if out.TrustWarning {
				return fmt.Errorf("证据未通过校验: %s", out.Badge)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cid, "cid", "", "证据 CID")
	f.StringVar(&digest, "digest", "", "声明的内容摘要")
	f.BoolVar(&encrypted, "encrypted", false, "取回内容为加密信封")
	f.StringVar(&keyFile, "key-file", "", "查看者私钥文件，用于解密校验（- 为标准输入）")
	f.StringVar(&signature, "signature", "", "EIP-712 签名")
	f.StringVar(&signer, "signer", "", "期望的签名者地址")
	f.StringVar(&typedDataPath, "typed-data", "", "签名对应的 typedData JSON 文件")
	_ = cmd.MarkFlagRequired("cid")
	_ = cmd.MarkFlagRequired("digest")
	return cmd
}
