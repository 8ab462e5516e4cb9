package decision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quantgate/config"
	"quantgate/logger"
	"quantgate/mcp"
)

// Engine 一个扫描周期的总装线
// 相关性矩阵与各币种流水线并发跑，汇合后过第二轮分配器和过滤器
type Engine struct {
	cfg          *config.TradingConfig
	evidence     EvidenceSource
	orchestrator *Orchestrator
	filter       *Filter
	allocator    *Allocator
	log          zerolog.Logger
}

func NewEngine(cfg *config.TradingConfig, evidence EvidenceSource, oracle mcp.Generator) *Engine {
	return &Engine{
		cfg:          cfg,
		evidence:     evidence,
		orchestrator: NewOrchestrator(evidence, oracle, cfg),
		filter:       NewFilter(cfg),
		allocator:    NewAllocator(cfg),
		log:          logger.Component("engine"),
	}
}

// RunCycle 跑完一个周期，产出最终信号集
// ranks/qualities为上游排名和质量分提示（均可空）。单币种失败只影响自己；
// 只有所有币种的裁判回复都无法解析时才算周期级结构性失败
func (e *Engine) RunCycle(ctx context.Context, account *Account, ranks map[string]int, qualities map[string]float64) (*CycleResult, error) {
	symbols := e.cfg.Symbols
	if len(symbols) == 0 {
		return nil, fmt.Errorf("未配置交易标的")
	}
	start := time.Now()
	e.log.Info().Int("assets", len(symbols)).Msg("🔄 周期开始")

	// 第一轮投机性均分
	provisional := e.allocator.InitialSplit(account.AvailableBalance, len(symbols))

	// 相关性矩阵与币种扇出并发：矩阵只依赖历史收盘价，不等任何流水线的输出
	var matrix CorrelationMatrix
	matrixDone := make(chan struct{})
	go func() {
		defer close(matrixDone)
		matrix = e.buildMatrix(ctx, symbols)
	}()

	// 扇出：每个币种一个协程，单个失败不取消兄弟
	var (
		mu          sync.Mutex
		signals     []*Signal
		rejected    []RejectedCandidate
		unparseable int
		wg          sync.WaitGroup
	)
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.log.Error().Str("symbol", symbol).Any("panic", r).Msg("🚨 流水线panic已捕获")
					mu.Lock()
					rejected = append(rejected, RejectedCandidate{
						Symbol: symbol, Reason: fmt.Sprintf("内部错误: %v", r),
					})
					mu.Unlock()
				}
			}()

			sig, rej, err := e.orchestrator.Process(ctx, symbol, account,
				provisional, ranks[symbol], qualities[symbol])

			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, mcp.ErrUnparseable) {
				unparseable++
			}
			if sig != nil {
				signals = append(signals, sig)
			}
			if rej != nil {
				rejected = append(rejected, *rej)
			}
		}(symbol)
	}
	wg.Wait()
	<-matrixDone

	// 周期级结构性失败：所有币种的裁判回复都不可解析，大概率是服务配置问题
	if unparseable == len(symbols) && len(symbols) > 0 {
		return nil, fmt.Errorf("所有%d个币种的裁判回复均无法解析，请检查oracle_url/oracle_model配置", len(symbols))
	}

	// 全部失败但不是结构性失败：返回空结果+汇总日志，不报错
	if len(signals) == 0 {
		e.log.Warn().
			Int("rejected", len(rejected)).
			Dur("elapsed", time.Since(start)).
			Msg("本周期未生成任何信号")
		return &CycleResult{Rejected: rejected, Timestamp: time.Now()}, nil
	}

	// 第二轮分配：只在真正要仓位的信号间均分（纯变换，扇入之后）
	finalized := e.allocator.Finalize(signals, account.AvailableBalance)

	kept, filterRejected := e.filter.Apply(finalized, matrix, account, len(symbols))
	rejected = append(rejected, filterRejected...)

	e.log.Info().
		Int("signals", len(kept)).
		Int("rejected", len(rejected)).
		Dur("elapsed", time.Since(start)).
		Msg("✅ 周期完成")
	return &CycleResult{Signals: kept, Rejected: rejected, Timestamp: time.Now()}, nil
}

// buildMatrix 取各币种收盘价序列建相关性矩阵
// 与扇出共享Provider缓存，通常不产生额外请求
func (e *Engine) buildMatrix(ctx context.Context, symbols []string) CorrelationMatrix {
	if len(symbols) < 2 {
		return nil
	}
	closes := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		data, err := e.evidence.Fetch(ctx, symbol)
		if err != nil || data == nil || len(data.Closes) == 0 {
			continue
		}
		closes[symbol] = data.Closes
	}
	return BuildCorrelationMatrix(closes)
}
