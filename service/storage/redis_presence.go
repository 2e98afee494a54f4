package storage

import (
	"context"
	"time"

	"chatcore/tools/safe"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// presence key: im:presence:<user>
// Value: node id, TTL controls the online validity period
func presenceKey(user string) string { return "im:presence:" + user }

// delete only when the key still belongs to this node; a newer login on
// another node must not be knocked offline
var offlineScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Presence mirrors the local registry into redis so other nodes and the REST
// path can answer "is this user connected anywhere". It is advisory: entries
// expire after ttl unless refreshed by heartbeats.
type Presence struct {
	rdb     *redis.Client
	node    string
	ttl     time.Duration
	timeout time.Duration
	log     *zap.Logger
}

func NewPresence(rdb *redis.Client, node string, ttl time.Duration, log *zap.Logger) *Presence {
	if log == nil {
		log = zap.NewNop()
	}
	return &Presence{rdb: rdb, node: node, ttl: ttl, timeout: 2 * time.Second, log: log}
}

// Online sets the user as online on this node and renews the TTL.
func (p *Presence) Online(ctx context.Context, user string) error {
	return errors.Wrap(p.rdb.Set(ctx, presenceKey(user), p.node, p.ttl).Err(), "presence online")
}

// Refresh renews the TTL. It rewrites the value so a key that already expired
// comes back.
func (p *Presence) Refresh(ctx context.Context, user string) error {
	return p.Online(ctx, user)
}

// Offline removes the key if this node owns it.
func (p *Presence) Offline(ctx context.Context, user string) error {
	err := offlineScript.Run(ctx, p.rdb, []string{presenceKey(user)}, p.node).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return errors.Wrap(err, "presence offline")
}

// Lookup returns the node the user is connected to.
func (p *Presence) Lookup(ctx context.Context, user string) (node string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "presence lookup")
	}
	return val, true, nil
}

// Observe is the registry hook. Writes happen off the caller's goroutine;
// two quick transitions for one user may land out of order, which the TTL
// bounds.
func (p *Presence) Observe(user string, live bool) {
	safe.Go(p.log, "presence.observe", func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		var err error
		if live {
			err = p.Online(ctx, user)
		} else {
			err = p.Offline(ctx, user)
		}
		if err != nil {
			p.log.Warn("presence write", zap.String("userId", user), zap.Bool("live", live), zap.Error(err))
		}
	})
}

// Heartbeat is the pong hook.
func (p *Presence) Heartbeat(user string) {
	safe.Go(p.log, "presence.heartbeat", func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.Refresh(ctx, user); err != nil {
			p.log.Debug("presence refresh", zap.String("userId", user), zap.Error(err))
		}
	})
}
