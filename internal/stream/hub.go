// Package stream pushes live tracking snapshots to websocket clients,
// optionally fanned out across agents through redis pub/sub.
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CurrentSession is the stream id that follows whichever session is active.
const CurrentSession = "current"

const (
	channelPrefix  = "tracking:"
	channelSuffix  = ":broadcast"
	channelPattern = channelPrefix + "*" + channelSuffix
)

type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	cancel  context.CancelFunc
	done    chan struct{}
}

type Client struct {
	SessionID string
	Send      chan []byte
}

// NewHub delivers locally when redisClient is nil. Otherwise every message
// goes through redis, so all agents sharing it see the same stream.
func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}

	if redisClient == nil {
		close(h.done)
		return h
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	ready := make(chan struct{})
	go h.subscribeRedis(ctx, ready)
	<-ready
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	if _, ok := sessionClients[client]; !ok {
		return
	}
	delete(sessionClients, client)
	if len(sessionClients) == 0 {
		delete(h.clients, client.SessionID)
	}
	close(client.Send)
}

// publishTimeout bounds a redis publish; snapshots are published from the
// tracking loop.
const publishTimeout = 500 * time.Millisecond

func (h *Hub) Broadcast(sessionID string, payload []byte) {
	if h.redis == nil {
		h.deliver(sessionID, payload)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.redis.Publish(ctx, redisChannel(sessionID), payload).Err(); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("redis publish failed, delivering locally")
		h.deliver(sessionID, payload)
	}
}

// PublishSnapshot sends snap to its session's stream and to CurrentSession.
// It is meant to be wired as the controller's update observer.
func (h *Hub) PublishSnapshot(snap tracking.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode snapshot")
		return
	}
	if snap.Session != nil {
		h.Broadcast(snap.Session.ID, payload)
	}
	h.Broadcast(CurrentSession, payload)
}

// Close stops the redis subscription.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

// deliver drops the message for clients whose buffer is full.
func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, ready chan<- struct{}) {
	defer close(h.done)
	pubsub := h.redis.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error().Err(err).Msg("redis subscribe failed")
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sessionID := sessionIDFromChannel(msg.Channel)
			if sessionID == "" {
				continue
			}
			h.deliver(sessionID, []byte(msg.Payload))
		}
	}
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	// tracking:{session}:broadcast
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
