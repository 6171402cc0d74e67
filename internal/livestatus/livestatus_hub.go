package livestatus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tn-work/internal/shared/contextutil"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPushInterval = 30 * time.Second
	writeTimeout        = 5 * time.Second
)

type client struct {
	userID string
	send   chan []byte
}

// Hub pushes today's live snapshot to every connected websocket, on each
// session change and on a fixed interval.
type Hub struct {
	service  Service
	rdb      *redis.Client
	interval time.Duration
	origins  []string
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	trigger chan struct{}
}

func NewHub(service Service, rdb *redis.Client, interval time.Duration, logger ...*zap.Logger) *Hub {
	l := zap.L().Named("livestatus.hub")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("livestatus.hub")
	}
	if interval <= 0 {
		interval = defaultPushInterval
	}
	return &Hub{
		service:  service,
		rdb:      rdb,
		interval: interval,
		origins:  []string{"*"},
		logger:   l,
		clients:  make(map[*client]struct{}),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger schedules a push. Calls made while one is pending are coalesced.
func (h *Hub) Trigger() {
	select {
	case h.trigger <- struct{}{}:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Run(ctx context.Context) {
	var changes <-chan *redis.Message
	if h.rdb != nil {
		sub := h.rdb.Subscribe(ctx, ChangedChannel)
		defer sub.Close()
		changes = sub.Channel()
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("live hub started", zap.Duration("interval", h.interval), zap.Bool("redis", h.rdb != nil))
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("live hub stopped")
			return
		case <-ticker.C:
			h.push(ctx)
		case <-h.trigger:
			h.push(ctx)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			h.push(ctx)
		}
	}
}

func (h *Hub) push(ctx context.Context) {
	if h.ClientCount() == 0 {
		return
	}
	frame, err := h.snapshotFrame(ctx)
	if err != nil {
		h.logger.Error("live snapshot failed", zap.Error(err))
		return
	}
	h.broadcast(frame)
}

func (h *Hub) snapshotFrame(ctx context.Context) ([]byte, error) {
	resp, err := h.service.Live(ctx, Query{Today: true})
	if err != nil {
		return nil, err
	}
	return json.Marshal(StreamMessage{Type: "snapshot", Data: &resp})
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.offer(frame)
	}
}

// offer never blocks: a slow client keeps only the newest frame.
func (c *client) offer(frame []byte) {
	select {
	case c.send <- frame:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeWS upgrades the request and streams snapshots until the peer leaves.
func (h *Hub) ServeWS(c *gin.Context) {
	log := contextutil.GetLogger(c.Request.Context(), h.logger)
	userID := c.GetString("user_id_validated")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		log.Warn("live stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	cl := &client{userID: userID, send: make(chan []byte, 1)}
	h.register(cl)
	defer h.unregister(cl)
	log.Info("live stream connected", zap.Int("clients", h.ClientCount()))

	// the stream is push only; CloseRead ends ctx when the peer goes away
	ctx := conn.CloseRead(c.Request.Context())

	if frame, err := h.snapshotFrame(ctx); err == nil {
		cl.offer(frame)
	} else {
		log.Error("initial live snapshot failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("live stream disconnected")
			return
		case frame := <-cl.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					log.Warn("live stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
