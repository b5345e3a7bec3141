package main

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected page (admin, dashboard, or a team board).
// Connections carry no team identity server-side; any connection may
// act as any team.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan any
}

type inboundMessage struct {
	client  *Client
	msgType string
	raw     []byte
}

// Hub owns the session. Every mutation of sessionState happens on the
// hub goroutine, one message handled to completion before the next, so
// no locks guard the game state. Timer ticks and the pre-round countdown
// arrive through the same select loop.
type Hub struct {
	cfg     *Config
	clients map[*Client]bool

	register   chan *Client
	unreg      chan *Client
	messages   chan inboundMessage
	historyReq chan chan []historyEntry

	state   *sessionState
	history *historyLog
	hosts   *hostTracker
	clock   clockwork.Clock
}

func newHub(cfg *Config, clock clockwork.Clock, history *historyLog, hosts *hostTracker) *Hub {
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		messages:   make(chan inboundMessage, 64),
		historyReq: make(chan chan []historyEntry),
		state:      newSessionState(clock),
		history:    history,
		hosts:      hosts,
		clock:      clock,
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			log.Debug().Str("client", c.id).Int("connected", len(h.clients)).Msg("client connected")
			h.replayStateTo(c)

		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			log.Debug().Str("client", c.id).Int("connected", len(h.clients)).Msg("client disconnected")

		case m := <-h.messages:
			h.handleMessage(m.client, m.msgType, m.raw)

		case reply := <-h.historyReq:
			reply <- slices.Clone(h.history.entries)

		case <-h.state.timer.tickChan():
			h.broadcastTimerTick()

		case <-h.state.timer.countdownChan():
			h.finishStartCountdown()

		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
				_ = c.conn.Close()
			}
			return
		}
	}
}

// broadcast fans a message out to every connected client. Sends never
// block: a client whose buffer is full is dropped rather than waited on.
func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// sendTo unicasts to one client with the same non-blocking contract.
func (h *Hub) sendTo(c *Client, msg any) {
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Debug().Str("client", c.id).Err(err).Msg("dropping invalid frame")
			continue
		}
		if env.Type == "" {
			continue
		}

		h.messages <- inboundMessage{client: c, msgType: env.Type, raw: raw}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// historySnapshot copies the history log from the hub goroutine, for
// the HTTP side-channel.
func (h *Hub) historySnapshot() []historyEntry {
	reply := make(chan []historyEntry, 1)
	h.historyReq <- reply
	return <-reply
}

// serveWS upgrades a connection and hands it to the hub.
func serveWS(h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.hosts.observe(r.Host)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan any, 32),
		}

		h.register <- client

		go client.writePump()
		client.readPump(h)
	}
}
