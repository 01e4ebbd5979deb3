package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/streams"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin filtering happens at the CORS layer
	},
}

// Hub maintains the set of active websocket clients and broadcasts messages.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
	log       zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		log:       logger,
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline keeps a stalled client from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := client.WriteMessage(websocket.TextMessage, message)
			if err != nil {
				h.log.Debug().Err(err).Msg("websocket write failed, dropping client")
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe handles incoming websocket connections
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	h.log.Info().Int("clients", total).Msg("websocket client connected")

	// Keep alive loop (we only push down, but must read to notice disconnects)
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			remaining := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			h.log.Info().Int("clients", remaining).Msg("websocket client disconnected")
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Debug().Err(err).Msg("websocket read error")
				}
				break
			}
		}
	}()
}

// Broadcast sends JSON data to all connected clients
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}

// ConsumeAlerts tails the alert stream and fans every payload out to
// connected clients. Each API instance reads with its own group so every
// instance sees every alert.
func (h *Hub) ConsumeAlerts(ctx context.Context, redis *streams.Client, consumer string) error {
	group := "alert-hub-" + consumer
	if err := redis.EnsureGroup(ctx, streams.StreamAlertJobs, group); err != nil {
		return err
	}

	for ctx.Err() == nil {
		msgs, err := redis.ReadGroup(ctx, streams.StreamAlertJobs, group, consumer, 32, 5*time.Second)
		if err != nil {
			if ctx.Err() == nil {
				h.log.Warn().Err(err).Msg("alert stream read failed")
				time.Sleep(time.Second)
			}
			continue
		}
		for _, msg := range msgs {
			if payload := msg.GetString("payload"); payload != "" {
				h.Broadcast([]byte(payload))
			}
			if err := redis.Ack(ctx, streams.StreamAlertJobs, group, msg.ID); err != nil && ctx.Err() == nil {
				h.log.Warn().Err(err).Msg("alert ack failed")
			}
		}
	}
	return nil
}
