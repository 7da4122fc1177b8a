package main

import (
	"github.com/spf13/cobra"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/cidnorm"
)

type digestOutput struct {
	Digest    string `json:"digest"`
	Mode      string `json:"mode"` // json | bytes
	Canonical string `json:"canonical,omitempty"`
}

func newDigestCmd(env *cliEnv) *cobra.Command {
	var (
		raw           bool
		showCanonical bool
	)
	cmd := &cobra.Command{
		Use:   "digest <file|->",
		Short: "计算证据内容摘要",
		Long: `计算 keccak256(规范化JSON)。

输入不是合法JSON或指定 --raw 时按原始字节计算 keccak256。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := env.readInput(args[0])
			if err != nil {
				return err
			}

			out := digestOutput{Mode: "bytes"}
			if !raw {
				if canon, err := canonical.CanonicalizeJSON(data); err == nil {
					out.Mode = "json"
					out.Digest = canonical.Keccak256([]byte(canon)).Hex()
					if showCanonical {
						out.Canonical = canon
					}
				}
			}
			if out.Mode == "bytes" {
				out.Digest = canonical.DigestBytes(data).Hex()
			}
			return env.formatter.PrintKV([][2]string{
				{"摘要", out.Digest},
				{"模式", out.Mode},
			}, out)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "按原始字节计算，不做JSON规范化")
	cmd.Flags().BoolVar(&showCanonical, "show-canonical", false, "同时输出规范化文本")
	return cmd
}

type cidOutput struct {
	Input      string `json:"input"`
	Normalized string `json:"normalized,omitempty"`
	CIDHash    string `json:"cidHash,omitempty"`
	Valid      bool   `json:"valid"`
}

func newCIDCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cid",
		Short: "CID 规范化与计算",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "normalize <cid>...",
		Short: "规范化 CID 并计算 cidHash",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outs := make([]cidOutput, 0, len(args))
			rows := make([][]string, 0, len(args))
			for _, a := range args {
				o := cidOutput{Input: a}
				if n, ok := cidnorm.Normalize(a); ok {
					o.Normalized = n
					o.CIDHash = cidnorm.Hash(a).Hex()
					o.Valid = true
				}
				outs = append(outs, o)
				rows = append(rows, []string{o.Input, o.Normalized, o.CIDHash})
			}
			return env.formatter.PrintTable([]string{"输入", "规范化", "cidHash"}, rows, outs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "compute <file|->",
		Short: "计算文件内容的 CIDv1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := env.readInput(args[0])
			if err != nil {
				return err
			}
			c := cidnorm.ForBytes(data)
			o := cidOutput{Input: args[0], Normalized: c, CIDHash: cidnorm.Hash(c).Hex(), Valid: true}
			return env.formatter.PrintKV([][2]string{{"CID", o.Normalized}, {"cidHash", o.CIDHash}}, o)
		},
	})
	return cmd
}
