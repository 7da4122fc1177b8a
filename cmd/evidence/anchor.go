package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/weisyn/evidence-anchor/internal/core/anchoring/chain"
	"github.com/weisyn/evidence-anchor/internal/core/anchoring/worker"
	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
)

type tickOutput struct {
	Scanned         int      `json:"scanned"`
	Attempted       int      `json:"attempted"`
	Anchored        int      `json:"anchored"`
	AlreadyAnchored int      `json:"alreadyAnchored"`
	Retrying        int      `json:"retrying"`
	FailedPermanent int      `json:"failedPermanent"`
	Pending         int      `json:"pending"`
	Errors          []string `json:"errors,omitempty"`
}

// withWorker 打开批次存储与锚定合约，创建一次性工作器后执行 fn
func (e *cliEnv) withWorker(ctx context.Context, fn func(w *worker.Worker, store *batchstore.Store) error) error {
	store, err := e.openBatchStore()
	if err != nil {
		return err
	}
	defer store.Close()

	anchor, err := chain.Open(ctx, e.provider.GetChain(), e.logger)
	if err != nil {
		return err
	}
	if closer, ok := anchor.(io.Closer); ok {
		defer closer.Close()
	}

	w := worker.New(store, anchor, worker.FromOptions(e.provider.GetAnchoring()),
		worker.WithLogger(e.logger))
	return fn(w, store)
}

func newAnchorCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "批次锚定操作",
		Long: `对批次存储执行锚定操作。

守护进程运行时会自动调度，这些命令用于手动补偿与运维。
链模式为 memory 时根只记录在本进程内，命令结束即丢失。`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "执行一轮锚定调度",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withWorker(cmd.Context(), func(w *worker.Worker, _ *batchstore.Store) error {
				report, err := w.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				out := tickOutput{
					Scanned:         report.Scanned,
					Attempted:       report.Attempted,
					Anchored:        report.Anchored,
					AlreadyAnchored: report.AlreadyAnchored,
					Retrying:        report.Retrying,
					FailedPermanent: report.FailedPermanent,
					Pending:         report.Pending,
				}
				for _, e := range report.Errors {
					out.Errors = append(out.Errors, e.Error())
				}
				if out.FailedPermanent > 0 {
					env.formatter.PrintWarning(fmt.Sprintf("%d 个批次进入永久失败，需要人工处理", out.FailedPermanent))
				}
				return env.formatter.PrintKV([][2]string{
					{"扫描", strconv.Itoa(out.Scanned)},
					{"尝试", strconv.Itoa(out.Attempted)},
					{"已上链", strconv.Itoa(out.Anchored + out.AlreadyAnchored)},
					{"重试中", strconv.Itoa(out.Retrying)},
					{"永久失败", strconv.Itoa(out.FailedPermanent)},
					{"待处理", strconv.Itoa(out.Pending)},
				}, out)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "把中断在提交中的批次恢复为待提交",
		Long: `进程在提交过程中崩溃会留下 submitting 状态的批次，守护进程不会自动重试。
确认没有其他守护进程在运行后，用本命令把它们恢复为 pending。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withWorker(cmd.Context(), func(w *worker.Worker, _ *batchstore.Store) error {
				n, err := w.Recover(cmd.Context())
				if err != nil {
					return err
				}
				env.formatter.PrintSuccess(fmt.Sprintf("已恢复 %d 个批次", n))
				return env.formatter.Print(map[string]int{"recovered": n})
			})
		},
	})

	var (
		caseID  string
		batchID int64
	)
	requeue := &cobra.Command{
		Use:   "requeue",
		Short: "把永久失败的批次重新排队",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withWorker(cmd.Context(), func(w *worker.Worker, store *batchstore.Store) error {
				if err := w.Requeue(cmd.Context(), caseID, batchID); err != nil {
					return err
				}
				env.formatter.PrintSuccess(fmt.Sprintf("批次已重新排队: case=%s batchId=%d", caseID, batchID))
				return env.formatter.Print(map[string]interface{}{"caseId": caseID, "batchId": batchID, "status": "pending"})
			})
		},
	}
	requeue.Flags().StringVar(&caseID, "case", "", "案件ID")
	requeue.Flags().Int64Var(&batchID, "batch", 0, "批次ID")
	_ = requeue.MarkFlagRequired("case")
	_ = requeue.MarkFlagRequired("batch")
	cmd.AddCommand(requeue)

	return cmd
}
