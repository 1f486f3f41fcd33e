package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"civicdispatch-be/models"
)

const (
	// Time allowed to push one frame onto a connection before it is
	// considered dead.
	writeWait = 10 * time.Second

	// Outbound frames buffered per listener before sends start failing.
	sendBufferSize = 256
)

var errSendBufferFull = errors.New("listener send buffer full")

// MessageStore durably records a chat message, assigning the server timestamp.
type MessageStore interface {
	Save(ctx context.Context, msg *models.Message) error
}

// MongoMessageStore persists messages to the messages collection.
type MongoMessageStore struct {
	collection *mongo.Collection
}

func NewMongoMessageStore(collection *mongo.Collection) *MongoMessageStore {
	return &MongoMessageStore{collection: collection}
}

func (s *MongoMessageStore) Save(ctx context.Context, msg *models.Message) error {
	msg.ID = primitive.NewObjectID()
	msg.Timestamp = time.Now()
	_, err := s.collection.InsertOne(ctx, msg)
	return err
}

// Frame is the wire format in both directions. Outbound frames carry the
// persisted message, not the client's original payload.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type chatPayload struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// wsListener wraps one websocket connection. Outbound frames go through a
// buffered channel drained by a single write pump, so Send never blocks the
// hub: a listener whose buffer is full just loses the frame.
type wsListener struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSListener(conn *websocket.Conn) *wsListener {
	return &wsListener{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (l *wsListener) Send(data []byte) error {
	select {
	case l.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// writePump drains the send buffer onto the connection. A write that cannot
// complete within writeWait kills the connection; the read loop then observes
// the close and detaches the listener from the hub.
func (l *wsListener) writePump() {
	defer l.conn.Close()
	for data := range l.send {
		l.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ChatHandler terminates websocket connections for community chat rooms.
type ChatHandler struct {
	hub      *Hub
	messages MessageStore
	logger   *logrus.Logger
}

func NewChatHandler(hub *Hub, messages MessageStore, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{hub: hub, messages: messages, logger: logger}
}

// ServeWS upgrades the connection and pumps chat frames. The room key comes
// from the community query parameter; a connection without one is closed.
func (h *ChatHandler) ServeWS(c *gin.Context) {
	room := c.Query("community")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	if room == "" {
		h.logger.Warn("Websocket connection without community, closing")
		conn.Close()
		return
	}

	listener := newWSListener(conn)
	go listener.writePump()
	h.hub.Join(listener, room)

	defer func() {
		h.hub.Leave(listener)
		close(listener.send)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.WithError(err).Warn("Dropping malformed websocket frame")
			continue
		}

		if frame.Type != "chat" {
			continue
		}

		h.handleChat(c.Request.Context(), room, frame.Payload)
	}
}

// handleChat persists the message first and only then republishes the stored
// form, so every listener sees the same canonical record with the
// server-assigned timestamp.
func (h *ChatHandler) handleChat(ctx context.Context, room string, payload json.RawMessage) {
	var chat chatPayload
	if err := json.Unmarshal(payload, &chat); err != nil {
		h.logger.WithError(err).Warn("Dropping malformed chat payload")
		return
	}

	msg := &models.Message{
		CommunityID: room,
		Sender:      chat.Sender,
		Text:        chat.Text,
	}

	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := h.messages.Save(saveCtx, msg); err != nil {
		h.logger.WithError(err).WithField("room", room).Error("Failed to persist chat message")
		return
	}

	stored, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode stored chat message")
		return
	}

	out, err := json.Marshal(Frame{Type: "chat", Payload: stored})
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode chat frame")
		return
	}

	h.hub.Publish(room, out)
}
