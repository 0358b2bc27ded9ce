// mbx — a small market-watch CLI for the Mercado Bitcoin v4 API.
//
// Usage:
//
//	mbx BTC-BRL ETH-BRL
//
// Fetches a ticker snapshot over REST for each symbol, then follows the
// live order book over WebSocket, logging best bid/ask, spread, and book
// imbalance once per second until SIGINT/SIGTERM.
//
// Configuration is read from configs/config.yaml (override the path with
// MB_CONFIG); credentials come from MB_LOGIN / MB_PASSWORD and are only
// needed for private endpoints, which this tool does not touch.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mbgo"
	"mbgo/internal/config"
	"mbgo/internal/market"
)

func main() {
	symbols := os.Args[1:]
	if len(symbols) == 0 {
		symbols = []string{"BTC-BRL"}
	}

	cfg := config.Default()
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("MB_CONFIG"); p != "" {
		cfgPath = p
	}
	if _, err := os.Stat(cfgPath); err == nil {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("failed to load config", "error", err, "path", cfgPath)
			os.Exit(1)
		}
		cfg = *loaded
	}

	client, err := mbgo.New(cfg)
	if err != nil {
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One REST snapshot per symbol before going live.
	tickers, err := client.Tickers(ctx, symbols...)
	if err != nil {
		logger.Error("failed to fetch tickers", "error", err)
		os.Exit(1)
	}
	for _, t := range tickers {
		logger.Info("ticker",
			"symbol", t.Pair,
			"last", t.Last,
			"buy", t.Buy,
			"sell", t.Sell,
			"vol", t.Vol,
		)
	}

	books := make([]*market.Book, 0, len(symbols))
	for _, symbol := range symbols {
		book, err := client.LiveOrderBook(ctx, symbol, market.WithMaxDepth(50))
		if err != nil {
			logger.Error("failed to open live book", "symbol", symbol, "error", err)
			os.Exit(1)
		}
		books = append(books, book)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			return
		case <-ticker.C:
			for _, book := range books {
				bid, okBid := book.BestBid()
				ask, okAsk := book.BestAsk()
				if !okBid || !okAsk {
					logger.Info("book empty", "symbol", book.Symbol(), "state", client.StreamState())
					continue
				}
				spread, _ := book.Spread()
				imb, _ := book.Imbalance(10)
				logger.Info("book",
					"symbol", book.Symbol(),
					"bid", bid.Price,
					"ask", ask.Price,
					"spread", spread,
					"imbalance", imb,
				)
			}
		}
	}
}
