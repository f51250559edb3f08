package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	BroadcastChannel = "chat:broadcast"
	roomKeyPrefix    = "room:"
	roomKeyTTL       = 24 * time.Hour
	nodeKeyPrefix    = "node:"

	// NodeTTL bounds how long a process that stopped heartbeating still
	// counts as holding its room members.
	NodeTTL = 15 * time.Second
)

// Emission is a gateway event addressed to a room, relayed between processes.
// Node identifies the publishing process so it can skip its own echoes.
type Emission struct {
	Node    string          `json:"node"`
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RedisBroker relays emissions over Redis Pub/Sub and mirrors room membership
// in one hash per room (connection id -> "node|user id"). A member counts only
// while the node key of the process that added it is alive.
type RedisBroker struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisBroker connects to addr and checks the connection.
func NewRedisBroker(ctx context.Context, logger *zap.SugaredLogger, addr, password string, db int) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Infow("connected to redis", "addr", addr)

	return &RedisBroker{client: rdb, logger: logger}, nil
}

// NewRedisBrokerFromClient wraps an existing client.
func NewRedisBrokerFromClient(logger *zap.SugaredLogger, rdb *redis.Client) *RedisBroker {
	return &RedisBroker{client: rdb, logger: logger}
}

func roomKey(room string) string { return roomKeyPrefix + room }

func nodeKey(node string) string { return nodeKeyPrefix + node }

func memberValue(node, userID string) string { return node + "|" + userID }

// parseMember splits a room hash value. Values without a node never match.
func parseMember(v string) (node, userID string, ok bool) {
	node, userID, ok = strings.Cut(v, "|")
	if !ok || node == "" {
		return "", "", false
	}
	return node, userID, true
}

// Publish sends e to every subscribed process, the publisher included.
func (b *RedisBroker) Publish(ctx context.Context, e Emission) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, BroadcastChannel, payload).Err()
}

// Subscribe listens on the broadcast channel until ctx is done. The returned
// channel is closed when the subscription ends.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Emission, error) {
	ps := b.client.Subscribe(ctx, BroadcastChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", BroadcastChannel, err)
	}

	out := make(chan Emission, 64)
	go func() {
		defer close(out)
		defer ps.Close()

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Emission
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.logger.Warnw("dropping malformed emission", "error", err)
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// JoinRoom records that connID (authenticated as userID) is in room, held by
// the process node. It also refreshes the node key.
func (b *RedisBroker) JoinRoom(ctx context.Context, room, node, connID, userID string) error {
	key := roomKey(room)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, connID, memberValue(node, userID))
		pipe.Expire(ctx, key, roomKeyTTL)
		pipe.Set(ctx, nodeKey(node), "1", NodeTTL)
		return nil
	})
	return err
}

// LeaveRoom forgets connID in room.
func (b *RedisBroker) LeaveRoom(ctx context.Context, room, connID string) error {
	return b.client.HDel(ctx, roomKey(room), connID).Err()
}

// Heartbeat keeps the members added by node alive for another NodeTTL.
func (b *RedisBroker) Heartbeat(ctx context.Context, node string) error {
	return b.client.Set(ctx, nodeKey(node), "1", NodeTTL).Err()
}

// Retire drops the node key so members of node stop counting at once.
func (b *RedisBroker) Retire(ctx context.Context, node string) error {
	return b.client.Del(ctx, nodeKey(node)).Err()
}

// RoomHasUser reports whether any connection in room, on a live process,
// belongs to userID. Entries held by dead processes are removed on the way.
func (b *RedisBroker) RoomHasUser(ctx context.Context, room, userID string) (bool, error) {
	key := roomKey(room)
	members, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return false, err
	}

	byNode := map[string][]string{}
	var stale []string
	for connID, v := range members {
		node, uid, ok := parseMember(v)
		if !ok {
			stale = append(stale, connID)
			continue
		}
		if uid == userID {
			byNode[node] = append(byNode[node], connID)
		}
	}

	found := false
	for node, conns := range byNode {
		n, err := b.client.Exists(ctx, nodeKey(node)).Result()
		if err != nil {
			return false, err
		}
		if n > 0 {
			found = true
			break
		}
		stale = append(stale, conns...)
	}

	if len(stale) > 0 {
		if err := b.client.HDel(ctx, key, stale...).Err(); err != nil {
			b.logger.Warnw("cannot prune dead room members", "room", room, "error", err)
		}
	}
	return found, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
