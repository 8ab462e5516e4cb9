// Package trader 交易所账户侧的只读接入
// 本系统只产出信号不下单，账户接入仅用于获取净值与持仓快照
package trader

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"

	"quantgate/decision"
	"quantgate/logger"
)

// AccountFetcher 从币安合约账户拉取快照
type AccountFetcher struct {
	client *futures.Client
	log    zerolog.Logger
}

func NewAccountFetcher(apiKey, secretKey string) *AccountFetcher {
	return &AccountFetcher{
		client: futures.NewClient(apiKey, secretKey),
		log:    logger.Component("trader"),
	}
}

// Snapshot 获取账户净值、可用余额与当前持仓
func (f *AccountFetcher) Snapshot(ctx context.Context) (*decision.Account, error) {
	acct, err := f.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取账户信息失败: %w", err)
	}

	snapshot := &decision.Account{
		TotalEquity:      parseFloat(acct.TotalWalletBalance) + parseFloat(acct.TotalUnrealizedProfit),
		AvailableBalance: parseFloat(acct.AvailableBalance),
	}

	risks, err := f.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取持仓信息失败: %w", err)
	}
	for _, r := range risks {
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		side := "long"
		if amt < 0 {
			side = "short"
		}
		leverage, _ := strconv.Atoi(r.Leverage)
		snapshot.Positions = append(snapshot.Positions, decision.Position{
			Symbol:        r.Symbol,
			Side:          side,
			EntryPrice:    parseFloat(r.EntryPrice),
			Quantity:      math.Abs(amt),
			Leverage:      leverage,
			UnrealizedPnL: parseFloat(r.UnRealizedProfit),
		})
	}

	f.log.Debug().
		Float64("equity", snapshot.TotalEquity).
		Int("positions", len(snapshot.Positions)).
		Msg("账户快照已更新")
	return snapshot, nil
}

// PaperAccount 无API密钥时的模拟账户（只出信号不执行，净值仅参与仓位计算）
func PaperAccount(equity float64) *decision.Account {
	return &decision.Account{
		TotalEquity:      equity,
		AvailableBalance: equity,
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
