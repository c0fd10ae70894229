package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
	"github.com/ECCC-CCCS/geomet-climate/internal/invalidation"
	mylog "github.com/ECCC-CCCS/geomet-climate/internal/logger"
)

// Purger drops serving state derived from the artifacts of layers.
type Purger interface {
	Purge(ctx context.Context, service string, layers ...string) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	purger Purger
	seen   *dedupe
	zlog   *zerolog.Logger
}

func New(cfg Config, logger *slog.Logger, p Purger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		purger: p,
		seen:   newDedupe(cfg.DedupeSize),
	}
}

// Start consumes recompile events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.purger == nil {
		return errors.New("kafkaconsumer: missing purger")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	zl := mylog.Build(mylog.Config{Level: "info", Component: "recompile_consumer"}, nil)
	c.zlog = &zl

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("recompile consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("recompile consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne applies a single recompile event. Malformed and duplicate
// events are dropped without error so the offset advances.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	defer func() { obs.ObserveUpstreamLatency("kafka_recompile", time.Since(start).Seconds()) }()

	var ev invalidation.RecompileEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		mylog.FromContext(ctx, c.zlog).Error().
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		c.logger.Warn("dropping undecodable recompile event", "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		c.logger.Warn("dropping invalid recompile event", "offset", msg.Offset, "err", err)
		return nil
	}
	if c.seen.contains(ev.Key()) {
		c.logger.Debug("duplicate recompile event (skipping)", "service", ev.Service, "checksum", ev.Checksum)
		return nil
	}

	if err := c.purger.Purge(ctx, ev.Service, ev.Layers...); err != nil {
		return fmt.Errorf("purge %s: %w", ev.Service, err)
	}
	c.seen.add(ev.Key())

	mylog.FromContext(ctx, c.zlog).Info().
		Str("event", "recompile").
		Str("service", ev.Service).
		Int("layers", len(ev.Layers)).
		Str("checksum", ev.Checksum).
		Msg("purged layer state")
	return nil
}
