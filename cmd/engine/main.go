// Command engine runs the WoPay payment lifecycle engine: address
// allocation, chain following, confirmation tracking, webhook delivery,
// and fund sweeping, all in one process.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wopay.dev/internal/chain"
	"wopay.dev/internal/chain/ethereum"
	"wopay.dev/internal/config"
	"wopay.dev/internal/engine"
	storemysql "wopay.dev/internal/store/mysql"
	"wopay.dev/internal/walletkey"
	"wopay.dev/pkg/logger"
	"wopay.dev/pkg/xredis"
)

func main() {
	configPath := flag.String("config", "config/engine.yaml", "path to engine config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger.Init(cfg.ServiceName, cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())

	db := storemysql.Connect(cfg.MySQL)

	store := storemysql.New(db)
	if err := store.AutoMigrate(); err != nil {
		logger.Fatal(ctx, "failed to migrate schema", zap.Error(err))
	}

	ethAdapter, err := ethereum.New(ctx, cfg.Chain.RPCURL, cfg.Chain.USDTContractAddress, int64(cfg.RequiredConfirmations))
	if err != nil {
		logger.Fatal(ctx, "failed to connect chain rpc", zap.Error(err))
	}
	chainAdapter := chain.NewBreakerAdapter(ethAdapter, "ethereum-rpc")

	wallet, err := walletkey.New(cfg.HDSeed)
	if err != nil {
		logger.Fatal(ctx, "failed to init hd wallet", zap.Error(err))
	}

	var encKey [32]byte
	decoded, err := hex.DecodeString(cfg.PrivateKeyEncryptionKey)
	if err != nil || len(decoded) != 32 {
		logger.Fatal(ctx, "private_key_encryption_key must be 32 bytes of hex")
	}
	copy(encKey[:], decoded)

	rdb := xredis.NewRedis(&xredis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lock := xredis.NewRedisLockMaster(rdb)

	eng := engine.New(cfg, store, chainAdapter, wallet, encKey, lock)

	go eng.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info(ctx, "shutdown signal received")
	cancel()
	time.Sleep(2 * time.Second)
}
