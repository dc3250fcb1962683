package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/couponhub/internal/config"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/queue"

	"github.com/shopspring/decimal"
)

func main() {
	count := flag.Int("count", 10, "生成的外部订单数量")
	enqueue := flag.Bool("enqueue", true, "写入后投递订单入库事件")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions("couponhub-seed"))
	defer logger.Sync()
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	platforms := []string{constants.PlatformTaobao, constants.PlatformPdd}
	batch := time.Now().Format("20060102150405")
	orders := make([]models.ExternalOrder, 0, *count)
	for i := 0; i < *count; i++ {
		orders = append(orders, models.ExternalOrder{
			FromPlatform: platforms[i%len(platforms)],
			Tid:          fmt.Sprintf("SEED%s%04d", batch, i),
			TargetProxy:  constants.TargetProxySexytea.String(),
			PayAmount:    models.NewMoneyFromDecimal(decimal.NewFromInt(int64(10 + i))),
			Status:       "paid",
		})
	}
	inserted, err := models.SeedExternalOrders(models.DB, orders)
	if err != nil {
		stdLog.Fatalf("Failed to seed external orders: %v", err)
	}
	stdLog.Printf("Seeded %d external orders", inserted)

	if !*enqueue {
		return
	}
	client, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		stdLog.Fatalf("Failed to create queue client: %v", err)
	}
	defer func() { _ = client.Close() }()
	if !client.Enabled() {
		stdLog.Printf("Queue disabled, skip enqueue")
		return
	}
	enqueued := 0
	for _, order := range orders {
		if err := client.EnqueueOrderInserted(queue.OrderInsertedPayload{FromPlatform: order.FromPlatform, Tid: order.Tid}); err != nil {
			stdLog.Printf("Failed to enqueue %s/%s: %v", order.FromPlatform, order.Tid, err)
			continue
		}
		enqueued++
	}
	stdLog.Printf("Enqueued %d order inserted events", enqueued)
}
