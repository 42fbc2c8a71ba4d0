// cmd/push-gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"tuanbuy/internal/pkg/config"
	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/mq"
)

var (
	nodeID   = "push-gateway-" + uuid.New().String()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// pushMessage 与通知 worker 写入推送主题的消息体一致。
type pushMessage struct {
	UserID  int64  `json:"user_id"`
	Type    string `json:"type"`
	Message string `json:"message"`
	DealID  int64  `json:"deal_id,omitempty"`
	OrderID int64  `json:"order_id,omitempty"`
}

// Hub 维护本节点的全部活跃连接，按用户 ID 索引。
type Hub struct {
	clients    map[int64]*Client
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.lock.Lock()
			if old, ok := h.clients[client.userID]; ok {
				close(old.send)
			}
			h.clients[client.userID] = client
			h.lock.Unlock()
			logger.Logger.Info().Int64("user_id", client.userID).Str("node", nodeID).
				Msg("client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if cur, ok := h.clients[client.userID]; ok && cur == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.lock.Unlock()
			logger.Logger.Info().Int64("user_id", client.userID).Msg("client unregistered")
		}
	}
}

// deliver 把消息投给在线用户，不在线直接丢弃。
// 写入 send 必须在读锁内完成：close 只发生在写锁下（同一用户重连
// 或注销），读锁排除了它，避免向已关闭的通道发送。
func (h *Hub) deliver(userID int64, payload []byte) {
	h.lock.RLock()
	client, ok := h.clients[userID]
	if !ok {
		h.lock.RUnlock()
		return
	}
	select {
	case client.send <- payload:
		h.lock.RUnlock()
	default:
		// 发送缓冲满说明连接已经不健康，踢掉。
		// 注销走 run 的写锁路径，必须先放掉读锁再排队。
		h.lock.RUnlock()
		h.unregister <- client
	}
}

// Client 代表一个 WebSocket 连接。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID int64
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("websocket upgrade")
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), userID: userID}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// consume 订阅推送主题。消费组带节点 ID：每个网关节点都收到全量
// 消息，各自只投递连到本节点的用户。
func consume(ctx context.Context, reader *kafka.Reader, hub *Hub) error {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logger.Logger.Error().Err(err).Msg("read push message")
			time.Sleep(time.Second)
			continue
		}

		var pm pushMessage
		if err := json.Unmarshal(msg.Value, &pm); err != nil {
			logger.Logger.Warn().Err(err).Msg("drop malformed push message")
			continue
		}
		hub.deliver(pm.UserID, msg.Value)
	}
}

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	port := flag.Int("port", 8088, "websocket listen port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.App.LogLevel, cfg.App.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := mq.NewKafkaReader(cfg.KafkaBrokerList(), cfg.Infra.Kafka.PushTopic, nodeID)
	defer reader.Close()

	hub := newHub()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) { serveWs(hub, w, r) })

	server := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.run(ctx)
		return nil
	})
	g.Go(func() error { return consume(ctx, reader, hub) })
	g.Go(func() error {
		logger.Logger.Info().Str("node", nodeID).Int("port", *port).Msg("push gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Logger.Fatal().Err(err).Msg("push gateway exited")
	}
}
