package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one connected participant: a single websocket connection bound
// to at most one room. The id is assigned at upgrade time and is opaque to
// the client.
type Client struct {
	id       string
	conn     *websocket.Conn
	rs       *RoomServer
	log      *log.Logger
	send     chan *ServerMessage
	room     *Room
	roomLock sync.RWMutex

	// stop is closed by whichever side shuts the connection down first, the
	// read pump's cleanup or a server shutdown. stopOnce keeps the two paths
	// from racing on a double close.
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(conn *websocket.Conn, rs *RoomServer, l *log.Logger) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		rs:   rs,
		log:  l,
		send: make(chan *ServerMessage, 256),
		stop: make(chan struct{}),
	}
}

func (c *Client) Id() string { return c.id }

func (c *Client) Write() {
	ticker := time.NewTicker(time.Duration(pingInterval))
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.Timestamp = Now()

		switch {
		case msg.CreateRoom != nil, msg.Join != nil:
			c.joinRoom(&msg)
		case msg.Leave != nil:
			c.leaveRoom(&msg)
		case msg.Play != nil, msg.Pause != nil, msg.Seek != nil, msg.Stop != nil,
			msg.ToggleSpatial != nil, msg.SourcePos != nil, msg.Sync != nil:
			r := c.getRoom()
			if r == nil {
				c.queueMessage(ErrRoomNotFound(msg.Id))
				continue
			}
			select {
			case r.cmdChan <- &msg:
			default:
				c.queueMessage(ErrServiceUnavailable(msg.Id))
				c.log.Printf("cmdChan full for room %q", r.id)
			}
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	// a closed stop channel means a server shutdown already stopped Run, so
	// nobody is left to receive the deregistration
	select {
	case c.rs.deRegisterChan <- c:
	case <-c.stop:
	}

	c.leaveCurrentRoom()
	c.stopClient()
}

func (c *Client) leaveCurrentRoom() {
	r := c.getRoom()
	if r == nil {
		return
	}

	r.leaveChan <- &ClientMessage{
		Leave:  &Leave{RoomId: r.id},
		client: c,
	}
}

func (c *Client) joinRoom(msg *ClientMessage) {
	// membership is exclusive: switching rooms leaves the old one first, so
	// its client set can empty out and tear the room down. Rejoining the
	// same room skips this and goes through the username takeover path.
	if r := c.getRoom(); r != nil && (msg.Join == nil || msg.Join.RoomId != r.id) {
		c.leaveCurrentRoom()
	}

	select {
	case c.rs.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) leaveRoom(msg *ClientMessage) {
	r := c.getRoom()
	if r == nil {
		c.log.Println("didn't find room")
		return
	}

	select {
	case r.leaveChan <- msg:
	default:
		c.log.Printf("leaveChan full for room %q", r.id)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) setRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()
	c.room = r
}

func (c *Client) delRoom(id string) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room != nil && c.room.id == id {
		c.room = nil
	}
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}
