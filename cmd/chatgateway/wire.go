package main

import (
	"context"
	"fmt"
	"io"

	"chatcore/data/database/mgo/mongoutil"
	"chatcore/global/config"
	"chatcore/module/chat/message"
	"chatcore/service/events"
	"chatcore/service/kafka"
	"chatcore/service/natsx"
	"chatcore/service/storage"
	redisx "chatcore/service/storage/redis"

	"go.uber.org/zap"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openStore builds the Store named by STORE_DRIVER. The returned closer
// releases the backend connection.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (message.Store, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := message.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		st := message.NewSQLStore(db)
		if err := st.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("store ready", zap.String("driver", cfg.StoreDriver))
		return st, db, nil

	case config.StoreMongo:
		cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
			Uri:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
		if err != nil {
			return nil, nil, err
		}
		st := message.NewMongoStore(cli.GetDB())
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = cli.Close(context.Background())
			return nil, nil, err
		}
		log.Info("store ready", zap.String("driver", cfg.StoreDriver), zap.String("db", cfg.MongoDatabase))
		return st, closerFunc(func() error { return cli.Close(context.Background()) }), nil

	case config.StoreMemory:
		log.Warn("memory store: history is lost on restart")
		return message.NewMemoryStore(), closerFunc(func() error { return nil }), nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openPublisher builds the event publisher named by EVENTS_DRIVER.
func openPublisher(cfg *config.Config, log *zap.Logger) (events.Publisher, error) {
	switch cfg.EventsDriver {
	case config.EventsNats:
		nc, err := natsx.Connect(natsx.NatsxConfig{
			Servers: natsx.SplitServers(cfg.NatsURL),
			Name:    fmt.Sprintf("chat-gateway-%d", cfg.NodeID),
		})
		if err != nil {
			return nil, err
		}
		return natsx.NewPublisher(nc), nil
	case config.EventsKafka:
		kc := kafka.DefaultConfig(cfg.Brokers())
		if err := kafka.EnsureTopicOnCluster(kc, cfg.EventsTopic, log); err != nil {
			// 没有建 topic 权限时依赖 broker 自动创建
			log.Warn("ensure events topic", zap.String("topic", cfg.EventsTopic), zap.Error(err))
		}
		return kafka.Dial(kc)
	case config.EventsNone:
		return events.Noop{}, nil
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
}

// openPresence connects the redis presence mirror; nil when REDIS_ADDR is unset.
func openPresence(ctx context.Context, cfg *config.Config, node string, log *zap.Logger) (*storage.Presence, io.Closer, error) {
	if cfg.RedisAddr == "" {
		return nil, closerFunc(func() error { return nil }), nil
	}
	rdb, err := redisx.NewClient(ctx, redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return storage.NewPresence(rdb, node, cfg.PresenceTTL, log), rdb, nil
}
