package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	keystoreconfig "github.com/weisyn/evidence-anchor/internal/config/keystore"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/envelope"
	"github.com/weisyn/evidence-anchor/internal/core/keystore"
)

type keyOutput struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	KeyFile   string `json:"keyFile,omitempty"`
}

func newKeygenCmd(env *cliEnv) *cobra.Command {
	var (
		outPath  string
		register bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "生成 secp256k1 密钥对",
		Long: `生成接收方或上传者使用的 secp256k1 密钥对。

私钥以十六进制写入 --out 指定的文件（权限 0600，已存在时拒绝覆盖）；
未指定 --out 时私钥输出到标准输出。--register 同时把公钥登记到公钥解析后端。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("生成密钥失败: %w", err)
			}
			privHex := hexutil.Encode(crypto.FromECDSA(key))

			out := keyOutput{
				Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
				PublicKey: keystore.EncodeKey(&key.PublicKey),
			}
			if outPath != "" {
				f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
				if err != nil {
					return fmt.Errorf("创建私钥文件失败: %w", err)
				}
				if _, err := fmt.Fprintln(f, privHex); err != nil {
					f.Close()
					return fmt.Errorf("写入私钥失败: %w", err)
				}
				if err := f.Close(); err != nil {
					return err
				}
				out.KeyFile = outPath
			}

			if register {
				if _, err := registerPublicKey(cmd.Context(), env.provider.GetKeystore(), &key.PublicKey); err != nil {
					return err
				}
				env.formatter.PrintSuccess("公钥已登记: " + out.Address)
			}

			if outPath == "" {
				env.formatter.PrintWarning("私钥仅显示一次，请妥善保存")
				fmt.Fprintln(env.stdout, privHex)
			}
			return env.formatter.PrintKV([][2]string{
				{"地址", out.Address},
				{"公钥", out.PublicKey},
			}, out)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "私钥输出文件")
	cmd.Flags().BoolVar(&register, "register", false, "把公钥登记到公钥解析后端")
	return cmd
}

// registerPublicKey 按配置的后端登记公钥
func registerPublicKey(ctx context.Context, opts *keystoreconfig.KeystoreOptions, pub *ecdsa.PublicKey) (common.Address, error) {
	switch opts.Backend {
	case keystoreconfig.BackendFile:
		return keystore.NewFileResolver(opts.Path).Register(pub)
	case keystoreconfig.BackendRedis:
		r, err := keystore.NewRedisResolver(ctx, opts)
		if err != nil {
			return common.Address{}, err
		}
		defer r.Close()
		return r.Register(ctx, pub)
	default:
		return common.Address{}, fmt.Errorf("未知公钥解析后端: %q", opts.Backend)
	}
}

func newKeystoreCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keystore",
		Short: "接收方公钥登记与查询",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "register <publicKeyHex>",
		Short: "登记接收方公钥（65字节非压缩或33字节压缩）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hexBytes(args[0])
			if err != nil {
				return fmt.Errorf("公钥格式无效: %w", err)
			}
			pub, err := envelope.ParsePublicKey(raw)
			if err != nil {
				return err
			}
			addr, err := registerPublicKey(cmd.Context(), env.provider.GetKeystore(), pub)
			if err != nil {
				return err
			}
			env.formatter.PrintSuccess("公钥已登记")
			out := keyOutput{Address: addr.Hex(), PublicKey: keystore.EncodeKey(pub)}
			return env.formatter.PrintKV([][2]string{{"地址", out.Address}, {"公钥", out.PublicKey}}, out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <address>",
		Short: "查询地址登记的公钥",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := parseAddresses(args)
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				return errors.New("缺少地址")
			}
			resolver, err := keystore.Open(cmd.Context(), env.provider.GetKeystore())
			if err != nil {
				return err
			}
			defer resolver.Close()

			pub, err := resolver.PublicKey(cmd.Context(), addrs[0])
			if err != nil {
				return err
			}
			out := keyOutput{Address: addrs[0].Hex(), PublicKey: keystore.EncodeKey(pub)}
			return env.formatter.PrintKV([][2]string{{"地址", out.Address}, {"公钥", out.PublicKey}}, out)
		},
	})
	return cmd
}
