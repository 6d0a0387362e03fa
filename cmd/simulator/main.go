// Command simulator publishes a random OrderConfirmed event every interval,
// for exercising the consumer against a real broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/messaging"
	"go.uber.org/zap"
)

func main() {
	var (
		interval  time.Duration
		customers int
		count     int
		seed      uint64
	)
	flag.DurationVar(&interval, "interval", time.Second, "Delay between events")
	flag.IntVar(&customers, "customers", 10, "Number of distinct customers to spread orders over")
	flag.IntVar(&count, "count", 0, "Stop after this many events (0 = run until interrupted)")
	flag.Uint64Var(&seed, "seed", 0, "Random seed (0 = random)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	faker := gofakeit.New(seed)
	pool := customerPool(faker, customers)

	publisher := messaging.NewOrderEventPublisher(messaging.NewWriter(cfg.Kafka), cfg.Kafka.Topic, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("Error closing Kafka writer", zap.Error(err))
		}
	}()

	log.Info("Simulator started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.Duration("interval", interval),
		zap.Int("customers", len(pool)),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for count == 0 || sent < count {
		event := randomOrder(faker, pool)
		if err := publisher.Publish(ctx, event); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("Failed to publish order", zap.String("order_id", event.OrderID), zap.Error(err))
		} else {
			sent++
			log.Info("Order published",
				zap.String("customer_id", event.CustomerID),
				zap.String("order_id", event.OrderID),
				zap.Float64("order_value", event.OrderValue),
			)
		}

		select {
		case <-ctx.Done():
			log.Info("Simulator stopped", zap.Int("sent", sent))
			return
		case <-ticker.C:
		}
	}
	log.Info("Simulator finished", zap.Int("sent", sent))
}

// customerPool returns n stable customer ids so that balances accumulate
func customerPool(faker *gofakeit.Faker, n int) []string {
	if n < 1 {
		n = 1
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = faker.Username()
	}
	return ids
}

func randomOrder(faker *gofakeit.Faker, pool []string) loyalty.OrderConfirmedEvent {
	value := faker.Price(5, 500)
	return loyalty.OrderConfirmedEvent{
		CustomerID: pool[faker.IntN(len(pool))],
		OrderID:    "ORD-" + faker.UUID(),
		OrderValue: math.Round(value*100) / 100,
	}
}
