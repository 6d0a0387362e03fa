// Command consumer credits loyalty points for confirmed orders read from Kafka.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/bootstrap"
	"github.com/loyalty/backend/internal/infrastructure/messaging"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	rt, err := bootstrap.Start(context.Background(), "consumer")
	if err != nil {
		panic("Failed to start: " + err.Error())
	}
	cfg := rt.Config
	log := rt.Logger.With(zap.String("group_id", cfg.Kafka.GroupID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := messaging.NewDialer(cfg.Kafka)
	checkCtx, cancelCheck := context.WithTimeout(ctx, cfg.Kafka.DialTimeout)
	err = messaging.CheckTopic(checkCtx, dialer, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	cancelCheck()
	if err != nil {
		log.Error("Kafka topic unavailable",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
			zap.Error(err),
		)
		rt.Close(context.Background())
		os.Exit(1)
	}

	reader := messaging.NewReader(cfg.Kafka, dialer, cfg.Consumer.CommitInterval)

	opts := []messaging.ConsumerOption{messaging.WithConsumerMetrics(rt.Metrics)}
	var deadLetter *messaging.DeadLetterPublisher
	if cfg.Consumer.DeadLetterEnabled {
		deadLetter = messaging.NewDeadLetterPublisher(messaging.NewWriter(cfg.Kafka), cfg.Consumer.DeadLetterTopic)
		opts = append(opts, messaging.WithDeadLetter(deadLetter))
		log.Info("Dead lettering enabled", zap.String("dead_letter_topic", cfg.Consumer.DeadLetterTopic))
	}

	earn := loyaltyapp.NewOrderConfirmedHandler(rt.Accounts, log,
		loyaltyapp.WithEarnRate(decimal.NewFromFloat(cfg.Loyalty.EarnRate)),
		loyaltyapp.WithMaxAttempts(cfg.Loyalty.MaxWriteAttempts),
		loyaltyapp.WithMetrics(rt.Metrics),
	)

	consumer := messaging.NewOrderConfirmedConsumer(reader, earn, messaging.ConsumerConfig{
		Topic:               cfg.Kafka.Topic,
		MaxDeliveryAttempts: cfg.Consumer.MaxDeliveryAttempts,
		RetryBackoff:        cfg.Consumer.RetryBackoff,
		MaxRetryBackoff:     cfg.Consumer.MaxRetryBackoff,
		ShutdownGrace:       cfg.App.ShutdownGrace,
	}, log, opts...)

	if err := consumer.Run(ctx); err != nil {
		log.Error("Order consumer failed", zap.Error(err))
	}

	// closing the reader flushes pending commits and leaves the group
	closeStart := time.Now()
	if err := reader.Close(); err != nil {
		log.Warn("Error closing Kafka reader", zap.Error(err))
	}
	if deadLetter != nil {
		if err := deadLetter.Close(); err != nil {
			log.Warn("Error closing dead letter writer", zap.Error(err))
		}
	}
	log.Info("Kafka clients closed", zap.Duration("took", time.Since(closeStart)))

	rt.Close(context.Background())
}
