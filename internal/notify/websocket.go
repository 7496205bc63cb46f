package notify

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// Authenticator vets the upgrade request. A non-nil error rejects it with 401.
type Authenticator func(r *http.Request) error

// clientMessage is what observers send: {"event":"join_room","data":{"room":"maintenance"}}.
type clientMessage struct {
	Event string `json:"event"`
	Data  struct {
		Room string `json:"room"`
	} `json:"data"`
}

// WSHandler upgrades HTTP requests to observer connections on the hub.
type WSHandler struct {
	Hub          *Hub
	Authenticate Authenticator
	Log          *zap.SugaredLogger
	upgrader     websocket.Upgrader
}

// NewWSHandler builds the handler. origins lists allowed Origin headers;
// empty or "*" allows any.
func NewWSHandler(hub *Hub, authn Authenticator, origins []string, log *zap.SugaredLogger) *WSHandler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return &WSHandler{
		Hub:          hub,
		Authenticate: authn,
		Log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 || allowed["*"] {
					return true
				}
				return allowed[strings.TrimRight(origin, "/")]
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Authenticate != nil {
		if err := h.Authenticate(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	c := h.Hub.Connect()
	go h.writePump(ws, c)
	h.readPump(ws, c)
}

// readPump handles room membership until the peer goes away.
func (h *WSHandler) readPump(ws *websocket.Conn, c *Conn) {
	defer func() {
		h.Hub.Disconnect(c)
		ws.Close()
	}()
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Log.Debugw("websocket read failed", "conn", c.ID, "error", err)
			}
			return
		}
		switch msg.Event {
		case "join_room":
			h.Hub.Join(c, msg.Data.Room)
		case "leave_room":
			h.Hub.Leave(c, msg.Data.Room)
		default:
			h.Log.Debugw("ignoring observer message", "conn", c.ID, "event", msg.Event)
		}
	}
}

// writePump is the only writer on ws.
func (h *WSHandler) writePump(ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case evt, ok := <-c.Messages():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(evt); err != nil {
				h.Log.Debugw("websocket write failed", "conn", c.ID, "error", err)
				h.Hub.Disconnect(c)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Hub.Disconnect(c)
				return
			}
		}
	}
}
