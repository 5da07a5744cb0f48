package commands

import (
	"context"
	"fmt"

	"github.com/marmos91/iec104d/internal/logger"
	"github.com/marmos91/iec104d/pkg/config"
	"github.com/marmos91/iec104d/pkg/sink"
)

// buildSinks connects the enabled sinks. The log sink is always present.
// The returned close function releases the broker connections.
func buildSinks(ctx context.Context, cfg *config.Config) (*sink.Multi, func(), error) {
	sinks := []sink.Sink{sink.NewLog()}
	var closers []func()

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATS.Enabled {
		nc, err := sink.DialNATS(cfg.NATS.URL, "iec104d-"+cfg.GatewayID)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("NATS drain failed", logger.KeyError, err)
			}
		})
		sinks = append(sinks, sink.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))
		logger.Info("NATS sink enabled", logger.KeyAddress, cfg.NATS.URL, logger.KeySubject, cfg.NATS.SubjectPrefix)
	}

	if cfg.Redis.Enabled {
		client, err := sink.DialRedis(ctx, sink.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis sink: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		sinks = append(sinks, sink.NewRedisRegistry(client, cfg.Redis.KeyPrefix, cfg.Redis.SessionTTL))
		logger.Info("Redis sink enabled", logger.KeyAddress, cfg.Redis.Addr, "ttl", cfg.Redis.SessionTTL)
	}

	return sink.NewMulti(sinks...), closeAll, nil
}
