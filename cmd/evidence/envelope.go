package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/cidnorm"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/envelope"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/storage/blob"
	"github.com/weisyn/evidence-anchor/internal/core/keystore"
)

type sealOutput struct {
	CID           string   `json:"cid,omitempty"`
	CIDHash       string   `json:"cidHash,omitempty"`
	ContentDigest string   `json:"contentDigest"`
	Recipients    []string `json:"recipients"`
	Version       uint     `json:"version"`
	Out           string   `json:"out,omitempty"`
}

// recipientFlags 接收方参数：地址通过公钥解析后端查找，公钥直接使用
type recipientFlags struct {
	addresses []string
	pubkeys   []string
}

func (r *recipientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&r.addresses, "to", nil, "接收方地址（通过公钥解析后端查找公钥）")
	cmd.Flags().StringSliceVar(&r.pubkeys, "to-pubkey", nil, "接收方公钥十六进制")
}

// resolve 汇总接收方公钥
func (r *recipientFlags) resolve(cmd *cobra.Command, env *cliEnv) ([]*ecdsa.PublicKey, error) {
	var pubs []*ecdsa.PublicKey
	for _, s := range r.pubkeys {
		raw, err := hexBytes(s)
		if err != nil {
			return nil, fmt.Errorf("公钥格式无效: %w", err)
		}
		pub, err := envelope.ParsePublicKey(raw)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}

	addrs, err := parseAddresses(r.addresses)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return pubs, nil
	}
	resolver, err := keystore.Open(cmd.Context(), env.provider.GetKeystore())
	if err != nil {
		return nil, err
	}
	defer resolver.Close()
	for _, addr := range addrs {
		pub, err := resolver.PublicKey(cmd.Context(), addr)
		if err != nil {
			return nil, fmt.Errorf("解析接收方 %s 公钥失败: %w", addr.Hex(), err)
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

// openBlobStore 打开配置的密文存储
func (e *cliEnv) openBlobStore() (*blob.Store, error) {
	return blob.Open(e.provider.GetBlob().Path, e.logger)
}

// emitEnvelope 把信封写入文件或密文存储，并输出摘要信息
func (e *cliEnv) emitEnvelope(cmd *cobra.Command, sealed *envelope.Envelope, outPath string, store bool) error {
	data, err := envelope.Encode(sealed)
	if err != nil {
		return err
	}
	out := sealOutput{
		ContentDigest: sealed.ContentDigest.Hex(),
		Version:       sealed.Version,
	}
	for _, a := range sealed.Addresses() {
		out.Recipients = append(out.Recipients, a.Hex())
	}

	if store {
		s, err := e.openBlobStore()
		if err != nil {
			return err
		}
		defer s.Close()
		if out.CID, err = s.Put(cmd.Context(), data); err != nil {
			return err
		}
		out.CIDHash = cidnorm.Hash(out.CID).Hex()
	}
	if outPath != "" {
		if err := e.writeOutput(outPath, append(data, '\n')); err != nil {
			return err
		}
		out.Out = outPath
	}
	if !store && outPath == "" {
		out.CID = cidnorm.ForBytes(data)
		out.CIDHash = cidnorm.Hash(out.CID).Hex()
		_, err := fmt.Fprintln(e.stdout, string(data))
		return err
	}
	return e.formatter.PrintKV([][2]string{
		{"CID", out.CID},
		{"内容摘要", out.ContentDigest},
		{"接收方数", fmt.Sprint(len(out.Recipients))},
	}, out)
}

// loadEnvelope 读取信封：参数是已存在的文件时读文件，否则按 CID 从密文存储读取
func (e *cliEnv) loadEnvelope(cmd *cobra.Command, ref string) (*envelope.Envelope, error) {
	var data []byte
	if _, err := os.Stat(ref); err == nil || ref == "-" {
		if data, err = e.readInput(ref); err != nil {
			return nil, err
		}
	} else {
		s, err := e.openBlobStore()
		if err != nil {
			return nil, err
		}
		defer s.Close()
		if data, err = s.Get(cmd.Context(), ref); err != nil {
			return nil, err
		}
	}
	return envelope.Decode(data)
}

func newSealCmd(env *cliEnv) *cobra.Command {
	var (
		recipients recipientFlags
		outPath    string
		store      bool
	)
	cmd := &cobra.Command{
		Use:   "seal <file|->",
		Short: "为接收方加密证据内容",
		Long: `把证据内容加密为信封（AES-256-GCM + 每个接收方的 ECIES 密钥封装）。

合法JSON按规范化文本加密，其他内容按字符串加密。
--store 把信封写入密文存储并输出 CID；--out 写入文件；两者都未指定时信封输出到标准输出。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := env.readInput(args[0])
			if err != nil {
				return err
			}
			var plaintext interface{} = string(data)
			if json.Valid(data) {
				plaintext = json.RawMessage(data)
			}

			pubs, err := recipients.resolve(cmd, env)
			if err != nil {
				return err
			}
			sealed, err := envelope.NewService(envelope.WithLogger(env.logger)).Seal(plaintext, pubs)
			if err != nil {
				return err
			}
			return env.emitEnvelope(cmd, sealed, outPath, store)
		},
	}
	recipients.register(cmd)
	cmd.Flags().StringVar(&outPath, "out", "", "信封输出文件")
	cmd.Flags().BoolVar(&store, "store", false, "写入密文存储")
	return cmd
}

func newOpenCmd(env *cliEnv) *cobra.Command {
	var (
		keyFile string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "open <file|cid>",
		Short: "用接收方私钥解密信封",
		Long: `解密信封并校验内容摘要，输出明文（规范化JSON）。

私钥通过 --key-file 读取，"-" 表示标准输入；未指定时在终端中提示输入。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sealed, err := env.loadEnvelope(cmd, args[0])
			if err != nil {
				return err
			}
			key, err := env.loadPrivateKey(keyFile)
			if err != nil {
				return err
			}
			plaintext, err := envelope.Open(sealed, key)
			if err != nil {
				return err
			}
			if outPath != "" {
				env.formatter.PrintSuccess("已解密: " + crypto.PubkeyToAddress(key.PublicKey).Hex())
			}
			return env.writeOutput(outPath, append(plaintext, '\n'))
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "接收方私钥文件（- 为标准输入）")
	cmd.Flags().StringVar(&outPath, "out", "", "明文输出文件")
	return cmd
}

func newReshareCmd(env *cliEnv) *cobra.Command {
	var (
		keyFile    string
		recipients recipientFlags
		outPath    string
		store      bool
	)
	cmd := &cobra.Command{
		Use:   "reshare <file|cid>",
		Short: "把信封共享给新的接收方",
		Long: `用现有接收方私钥解出内容密钥，为新接收方追加封装密钥，生成新信封。

原信封保持不变；历史版本信封需要重新封装，不能直接共享。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := env.loadEnvelope(cmd, args[0])
			if err != nil {
				return err
			}
			key, err := env.loadPrivateKey(keyFile)
			if err != nil {
				return err
			}
			pubs, err := recipients.resolve(cmd, env)
			if err != nil {
				return err
			}
			shared, err := envelope.NewService(envelope.WithLogger(env.logger)).Reshare(original, key, pubs)
			if err != nil {
				return err
			}
			return env.emitEnvelope(cmd, shared, outPath, store)
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "现有接收方私钥文件（- 为标准输入）")
	recipients.register(cmd)
	cmd.Flags().StringVar(&outPath, "out", "", "新信封输出文件")
	cmd.Flags().BoolVar(&store, "store", false, "写入密文存储")
	return cmd
}
