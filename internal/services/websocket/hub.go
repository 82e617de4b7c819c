// Package websocket pushes the operator view to connected browsers.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"platestation/internal/logger"
	"platestation/internal/models"
)

// Message types sent to viewers.
const (
	TypeFrame  = "frame"
	TypeStatus = "status"
	TypeLog    = "log"
	TypeClear  = "clear"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxViewerRead   = 512
	viewerQueue     = 32
)

// Message is the JSON envelope of every push. Image carries a JPEG and is
// base64 encoded by encoding/json.
type Message struct {
	Type     string          `json:"type"`
	Image    []byte          `json:"image,omitempty"`
	Message  string          `json:"message,omitempty"`
	Severity models.Severity `json:"severity,omitempty"`
	Line     string          `json:"line,omitempty"`
}

// FrameEncoder turns a frame into display-sized JPEG bytes.
type FrameEncoder interface {
	EncodeForDisplay(frame models.Frame) ([]byte, error)
}

// viewer is one browser connection. Only its writePump writes to conn.
type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// HubService fans messages out to every registered viewer. New viewers get the
// last frame and status so they do not start on a blank page. A viewer whose
// queue is full is dropped; the hub itself never waits on a connection.
type HubService struct {
	clients    map[*viewer]bool
	broadcast  chan []byte
	register   chan *viewer
	unregister chan *viewer
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
	encoder    FrameEncoder

	pongWait   time.Duration
	pingPeriod time.Duration

	lastMu     sync.Mutex
	lastFrame  []byte
	lastStatus []byte
}

// HubOption tunes a HubService.
type HubOption func(*HubService)

// WithPongWait sets how long a viewer may stay silent before it is dropped.
// Pings go out at half that interval.
func WithPongWait(wait time.Duration) HubOption {
	return func(h *HubService) {
		if wait > 0 {
			h.pongWait = wait
			h.pingPeriod = wait / 2
		}
	}
}

// NewHubService creates a hub. Run must be started before anything is pushed.
func NewHubService(encoder FrameEncoder, logger *logger.Logger, opts ...HubOption) *HubService {
	h := &HubService{
		clients:    make(map[*viewer]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
		done:       make(chan struct{}),
		logger:     logger,
		encoder:    encoder,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPongWait / 2,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serves register, unregister and broadcast until ctx is cancelled.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", count)
			h.replay(client)

		case client := <-h.unregister:
			h.drop(client)
			h.logger.Info("Viewer disconnected. Total: %d", h.GetClientCount())

		case message := <-h.broadcast:
			h.mutex.RLock()
			var lagging []*viewer
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					lagging = append(lagging, client)
				}
			}
			h.mutex.RUnlock()
			for _, client := range lagging {
				h.logger.Warning("Viewer %s is not keeping up, disconnecting", client.conn.RemoteAddr())
				h.drop(client)
			}
		}
	}
}

// drop removes client and closes its queue, which ends its writePump.
func (h *HubService) drop(client *viewer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *HubService) replay(client *viewer) {
	h.lastMu.Lock()
	pending := [][]byte{h.lastStatus, h.lastFrame}
	h.lastMu.Unlock()

	for _, message := range pending {
		if message == nil {
			continue
		}
		select {
		case client.send <- message:
		default:
		}
	}
}

// Serve attaches conn as a viewer and blocks until it goes away or the hub
// stops. Viewers only receive; anything they send is read and discarded.
func (h *HubService) Serve(conn *websocket.Conn) {
	client := &viewer{conn: conn, send: make(chan []byte, viewerQueue)}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)

	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *HubService) readPump(client *viewer) {
	conn := client.conn
	conn.SetReadLimit(maxViewerRead)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

func (h *HubService) writePump(client *viewer) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("Error sending message: %v", err)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetClientCount returns the number of connected viewers.
func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ShowFrame pushes a frame to viewers. Frames are dropped when viewers fall
// behind; the caller keeps ownership of frame.
func (h *HubService) ShowFrame(frame models.Frame) {
	data, err := h.encoder.EncodeForDisplay(frame)
	if err != nil {
		h.logger.Error("Error encoding frame for display: %v", err)
		return
	}
	message, ok := h.marshal(Message{Type: TypeFrame, Image: data})
	if !ok {
		return
	}

	h.lastMu.Lock()
	h.lastFrame = message
	h.lastMu.Unlock()

	h.send(message)
}

// ShowStatus replaces the status line.
func (h *HubService) ShowStatus(text string, severity models.Severity) {
	message, ok := h.marshal(Message{Type: TypeStatus, Message: text, Severity: severity})
	if !ok {
		return
	}
	h.lastMu.Lock()
	h.lastStatus = message
	h.lastMu.Unlock()
	h.send(message)
}

// AppendLog adds one line to the viewers' log panel.
func (h *HubService) AppendLog(line string) {
	if message, ok := h.marshal(Message{Type: TypeLog, Line: line}); ok {
		h.send(message)
	}
}

// ClearFrame blanks the viewers' image and shows text in its place.
func (h *HubService) ClearFrame(text string) {
	message, ok := h.marshal(Message{Type: TypeClear, Message: text})
	if !ok {
		return
	}
	h.lastMu.Lock()
	h.lastFrame = nil
	h.lastMu.Unlock()
	h.send(message)
}

// send never blocks the caller. A message that finds the queue full is lost.
func (h *HubService) send(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		h.logger.Warning("Viewer queue full, dropping message")
	}
}

func (h *HubService) marshal(m Message) ([]byte, bool) {
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("Error marshalling %s message: %v", m.Type, err)
		return nil, false
	}
	return data, true
}
