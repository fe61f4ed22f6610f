package main

import (
	"context"
	"flag"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"options-mm/instrument"
	"options-mm/market"
	"options-mm/risk"
	"options-mm/sim"
)

// 本地模拟交易所：一个反向期货和一组看涨/看跌期权，期货价格随机游走，
// 挂单按概率随机成交。用于在不连接真实交易所时演练做市循环。
func main() {
	addr := flag.String("addr", "127.0.0.1:8765", "websocket 监听地址")
	base := flag.Float64("base", 100, "期货初始价格")
	step := flag.Float64("step", 0.5, "每次随机游走的标准差")
	interval := flag.Duration("interval", time.Second, "行情推送间隔")
	fillProb := flag.Float64("fillProb", 0.05, "每个挂单在每个间隔内成交的概率")
	days := flag.Int("days", 30, "合约剩余天数")
	apiKey := flag.String("apiKey", "", "校验用的 api key")
	apiSecret := flag.String("apiSecret", "", "校验用的 api secret，为空时不校验签名")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	expiry := time.Now().UTC().Add(time.Duration(*days) * 24 * time.Hour).Truncate(time.Hour)
	insts := []instrument.Instrument{{
		ID: 1, Symbol: "FUT", Kind: instrument.KindInverseFutures,
		Expiration: expiry, TickSize: decimal.RequireFromString("0.5"), NotionalAmount: 1,
	}}
	id := 2
	for _, k := range []float64{0.9, 1.0, 1.1} {
		strike := decimal.NewFromFloat(*base * k).Round(0)
		for _, kind := range []instrument.Kind{instrument.KindCallOption, instrument.KindPutOption} {
			insts = append(insts, instrument.Instrument{
				ID: id, Symbol: kind.String() + "-" + strike.String(), Kind: kind,
				Expiration: expiry, Strike: strike, TickSize: decimal.RequireFromString("0.0001"), NotionalAmount: 1,
			})
			id++
		}
	}

	x := sim.NewExchange(insts, risk.AccountState{Balance: decimal.NewFromInt(10)}, logger)
	x.APIKey, x.APISecret = *apiKey, *apiSecret

	srv := &http.Server{Addr: *addr, Handler: x, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("sim exchange listening", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mid := *base
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
		}

		mid += rand.NormFloat64() * *step // 简单高斯扰动
		if mid < 1 {
			mid = 1
		}
		last := decimal.NewFromFloat(mid).Round(1)
		if err := x.SetQuotes(market.Quotes{InstrumentID: 1, Last: last}); err != nil {
			logger.Debug("quotes not delivered", zap.Error(err))
			continue
		}
		for _, oid := range x.OpenOrderIDs() {
			if rand.Float64() >= *fillProb {
				continue
			}
			if err := x.Fill(oid, 1); err != nil {
				logger.Warn("fill", zap.Int64("order", oid), zap.Error(err))
			}
		}
	}
}
