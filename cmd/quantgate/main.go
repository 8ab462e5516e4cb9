package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantgate/api"
	"quantgate/config"
	"quantgate/decision"
	"quantgate/logger"
	"quantgate/market"
	"quantgate/mcp"
	"quantgate/trader"
)

func main() {
	_ = godotenv.Load()
	logger.Init()
	log := logger.Component("main")

	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}
	log.Info().
		Strs("symbols", cfg.Symbols).
		Str("interval", cfg.ScanInterval).
		Bool("autonomous", cfg.Autonomous).
		Msg("🚀 quantgate启动")

	interval, err := time.ParseDuration(cfg.ScanInterval)
	if err != nil {
		log.Fatal().Str("interval", cfg.ScanInterval).Err(err).Msg("扫描间隔格式无效")
	}

	provider := market.NewProvider(cfg.KlineLimit)
	oracle := mcp.NewOracle(mcp.NewClient(cfg.OracleURL, cfg.OracleKey, cfg.OracleModel))
	engine := decision.NewEngine(cfg, provider, oracle)

	// 账户接入：有密钥走真实账户，没有就用模拟账户（只出信号）
	var fetcher *trader.AccountFetcher
	apiKey, secretKey := os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY")
	if apiKey != "" && secretKey != "" {
		fetcher = trader.NewAccountFetcher(apiKey, secretKey)
	} else {
		log.Warn().Msg("⚠️ 未配置交易所密钥，使用模拟账户")
	}
	paperEquity := 10000.0
	if v := os.Getenv("QG_PAPER_EQUITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			paperEquity = f
		}
	}

	server := api.NewServer()
	go func() {
		if err := server.Run(cfg.APIListen); err != nil {
			log.Fatal().Err(err).Msg("审计API启动失败")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("收到退出信号，停止扫描")
		cancel()
	}()

	runCycle := func() {
		account := trader.PaperAccount(paperEquity)
		if fetcher != nil {
			snapshot, err := fetcher.Snapshot(ctx)
			if err != nil {
				log.Error().Err(err).Msg("账户快照获取失败，本周期跳过")
				return
			}
			account = snapshot
		}

		result, err := engine.RunCycle(ctx, account, nil, nil)
		if err != nil {
			log.Error().Err(err).Msg("🚨 周期执行失败")
			return
		}
		server.SetResult(result)
	}

	runCycle()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCycle()
		}
	}
}
