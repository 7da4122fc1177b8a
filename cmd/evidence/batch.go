package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	httptypes "github.com/weisyn/evidence-anchor/internal/api/http/types"
	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/cidnorm"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/merkle"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// openBatchStore 打开配置的批次存储
func (e *cliEnv) openBatchStore() (*batchstore.Store, error) {
	return batchstore.Open(e.provider.GetBatchStore(), nil, e.logger)
}

func newBatchCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "证据条目与默克尔批次",
	}
	cmd.AddCommand(
		newBatchItemCmd(env),
		newBatchSealCmd(env),
		newBatchListCmd(env),
		newBatchProofCmd(env),
	)
	return cmd
}

func newBatchItemCmd(env *cliEnv) *cobra.Command {
	var (
		caseID    string
		file      string
		cid       string
		uploader  string
		timestamp int64
		appendTo  string
	)
	cmd := &cobra.Command{
		Use:   "item",
		Short: "由证据内容生成证据条目",
		Long: `计算内容摘要与 cidHash，生成一条证据条目。

--append 把条目追加到 JSON 数组文件，供 batch seal --items 使用。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := env.readInput(file)
			if err != nil {
				return err
			}
			digest, err := canonical.DigestJSON(data)
			if err != nil {
				digest = canonical.DigestBytes(data)
			}
			if !common.IsHexAddress(uploader) {
				return fmt.Errorf("无效上传者地址: %q", uploader)
			}
			if timestamp == 0 {
				timestamp = time.Now().UnixMilli()
			}
			item := types.EvidenceItem{
				CaseID:        caseID,
				ContentDigest: digest,
				CIDHash:       cidnorm.Hash(cid),
				Uploader:      common.HexToAddress(uploader),
				Timestamp:     timestamp,
			}

			if appendTo != "" {
				items, err := readItems(appendTo, true)
				if err != nil {
					return err
				}
				items = append(items, item)
				out, err := json.MarshalIndent(items, "", "  ")
				if err != nil {
					return err
				}
				if err := env.writeOutput(appendTo, append(out, '\n')); err != nil {
					return err
				}
				env.formatter.PrintSuccess(fmt.Sprintf("已追加到 %s，共 %d 条", appendTo, len(items)))
			}
			return env.formatter.Print(item)
		},
	}
	f := cmd.Flags()
	f.StringVar(&caseID, "case", "", "案件ID")
	f.StringVar(&file, "file", "", "证据内容文件（- 为标准输入）")
	f.StringVar(&cid, "cid", "", "证据存储 CID（可选）")
	f.StringVar(&uploader, "uploader", "", "上传者地址")
	f.Int64Var(&timestamp, "timestamp", 0, "毫秒时间戳（默认当前时间）")
	f.StringVar(&appendTo, "append", "", "追加到条目文件")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("uploader")
	return cmd
}

// readItems 读取条目数组，allowMissing 时文件不存在返回空
func readItems(path string, allowMissing bool) ([]types.EvidenceItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取条目文件失败: %w", err)
	}
	var items []types.EvidenceItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("解析条目文件失败: %w", err)
	}
	return items, nil
}

func newBatchSealCmd(env *cliEnv) *cobra.Command {
	var (
		caseID    string
		itemsPath string
		maxSize   int
	)
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "封存证据条目为默克尔批次并写入批次存储",
		Long: `读取条目文件，去除完全相同的重复条目后封存为默克尔批次。

条目数超过 --max-size 时按顺序拆分为多个批次。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(itemsPath, false)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return merkle.ErrEmptyBatch
			}

			store, err := env.openBatchStore()
			if err != nil {
				return err
			}
			defer store.Close()

			collector := merkle.NewCollector(merkle.NewBuilder(nil), store.Create, maxSize, env.logger)
			var sealed []*types.MerkleBatch
			for i, item := range items {
				if item.CaseID == "" {
					item.CaseID = caseID
				}
				if item.CaseID != caseID {
					return fmt.Errorf("%w: 第 %d 条属于 %q", merkle.ErrCaseMismatch, i, item.CaseID)
				}
				b, err := collector.Add(cmd.Context(), item)
				if err != nil {
					return err
				}
				if b != nil {
					sealed = append(sealed, b)
				}
			}
			if len(collector.Pending(caseID)) > 0 {
				b, err := collector.Seal(cmd.Context(), caseID)
				if err != nil {
					return err
				}
				sealed = append(sealed, b)
			}

			summaries := make([]httptypes.BatchSummary, 0, len(sealed))
			rows := make([][]string, 0, len(sealed))
			for _, b := range sealed {
				s := httptypes.NewBatchSummary(b)
				summaries = append(summaries, s)
				rows = append(rows, []string{
					s.CaseID,
					strconv.FormatInt(s.BatchID, 10),
					s.MerkleRoot.Hex(),
					strconv.Itoa(s.ItemCount),
					string(s.Status),
				})
			}
			env.formatter.PrintSuccess(fmt.Sprintf("已封存 %d 个批次: case=%s", len(sealed), caseID))
			return env.formatter.PrintTable([]string{"案件", "批次", "默克尔根", "条目数", "状态"}, rows, summaries)
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "案件ID")
	cmd.Flags().StringVar(&itemsPath, "items", "", "证据条目 JSON 数组文件")
	cmd.Flags().IntVar(&maxSize, "max-size", merkle.DefaultMaxBatchSize, "单个批次的最大条目数")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("items")
	return cmd
}

func newBatchListCmd(env *cliEnv) *cobra.Command {
	var (
		caseID string
		status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出批次",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !types.BatchStatus(status).Valid() {
				return fmt.Errorf("未知状态: %q", status)
			}
			store, err := env.openBatchStore()
			if err != nil {
				return err
			}
			defer store.Close()

			caseIDs := []string{caseID}
			if caseID == "" {
				if caseIDs, err = store.CaseIDs(cmd.Context()); err != nil {
					return err
				}
			}

			summaries := make([]httptypes.BatchSummary, 0)
			rows := make([][]string, 0)
			for _, id := range caseIDs {
				batches, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				for _, b := range batches {
					if status != "" && b.Status != types.BatchStatus(status) {
						continue
					}
					s := httptypes.NewBatchSummary(b)
					summaries = append(summaries, s)
					tx := "-"
					if s.TxHash != nil {
						tx = s.TxHash.Hex()
					}
					rows = append(rows, []string{
						s.CaseID,
						strconv.FormatInt(s.BatchID, 10),
						string(s.Status),
						strconv.FormatUint(uint64(s.Attempts), 10),
						strconv.Itoa(s.ItemCount),
						s.MerkleRoot.Hex(),
						tx,
					})
				}
			}
			return env.formatter.PrintTable(
				[]string{"案件", "批次", "状态", "尝试", "条目", "默克尔根", "交易"},
				rows, summaries)
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "只列出指定案件")
	cmd.Flags().StringVar(&status, "status", "", "按状态过滤: pending|submitting|onchain_submitted|failed_permanent")
	return cmd
}

func newBatchProofCmd(env *cliEnv) *cobra.Command {
	var (
		caseID  string
		batchID int64
		index   int
	)
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "输出并校验单条证据的默克尔证明",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.openBatchStore()
			if err != nil {
				return err
			}
			defer store.Close()

			batches, err := store.Get(cmd.Context(), caseID)
			if err != nil {
				return err
			}
			b := batchstore.FindBatch(batches, batchID)
			if b == nil {
				return fmt.Errorf("%w: case=%s batchId=%d", batchstore.ErrBatchNotFound, caseID, batchID)
			}
			if index < 0 || index >= len(b.EvidenceItems) {
				return fmt.Errorf("条目索引越界: %d（共 %d 条）", index, len(b.EvidenceItems))
			}

			item := b.EvidenceItems[index]
			proof := b.Proofs[index]
			leaf := merkle.LeafHash(item)
			resp := httptypes.ProofResponse{
				CaseID:   b.CaseID,
				BatchID:  b.BatchID,
				Index:    index,
				Item:     item,
				LeafHash: leaf,
				Proof:    proof,
				Root:     b.MerkleRoot,
				Valid:    merkle.Verify(leaf, proof, b.MerkleRoot),
				Status:   b.Status,
				TxHash:   b.TxHash,
			}
			if err := env.formatter.PrintKV([][2]string{
				{"叶子", leaf.Hex()},
				{"默克尔根", b.MerkleRoot.Hex()},
				{"路径长度", strconv.Itoa(len(proof))},
				{"有效", strconv.FormatBool(resp.Valid)},
			}, resp); err != nil {
				return err
			}
			if !resp.Valid {
				return errors.New("默克尔证明校验失败")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "案件ID")
	cmd.Flags().Int64Var(&batchID, "batch", 0, "批次ID")
	cmd.Flags().IntVar(&index, "index", 0, "条目索引")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}
