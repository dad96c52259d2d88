package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/teris-io/shortid"

	"github.com/spksound/syncroom/internal/clock"
	"github.com/spksound/syncroom/internal/config"
	"github.com/spksound/syncroom/internal/stats"
	"github.com/spksound/syncroom/internal/store"
	"github.com/spksound/syncroom/internal/transcode"
	"github.com/spksound/syncroom/internal/types"
)

// maxIdAttempts bounds the room id collision-retry loop.
const maxIdAttempts = 10

// RoomServer owns room identity and lifecycle and dispatches client
// commands into per-room event loops. It is the fan-out/fan-in boundary:
// a command enters here, mutates exactly one room, and the result is
// broadcast to every connection bound to that room.
type RoomServer struct {
	log        *log.Logger
	store      store.RoomStore
	clock      *clock.Clock
	transcoder transcode.Transcoder
	stats      stats.StatsProvider
	spatialCfg config.Spatial

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	joinChan       chan *ClientMessage
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string

	rooms map[string]*Room
	stop  chan struct{}
	done  chan struct{}
}

func NewRoomServer(logger *log.Logger, st store.RoomStore, clk *clock.Clock, tc transcode.Transcoder, sp stats.StatsProvider, spatialCfg config.Spatial) (*RoomServer, error) {
	rs := &RoomServer{
		log:            logger,
		store:          st,
		clock:          clk,
		transcoder:     tc,
		stats:          sp,
		spatialCfg:     spatialCfg,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string, 64),
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, m := range []string{
		stats.ActiveRooms,
		stats.ConnectedClients,
		stats.SpatialTicks,
		stats.ScheduledCommands,
		stats.LateJoinerSyncs,
	} {
		sp.RegisterMetric(m)
	}

	return rs, nil
}

func (rs *RoomServer) Run() {
	for {
		select {
		case joinMsg := <-rs.joinChan:
			rs.handleJoin(joinMsg)
		case client := <-rs.RegisterChan:
			rs.log.Printf("adding connection %q", client.id)
			rs.addClient(client)
		case client := <-rs.deRegisterChan:
			rs.log.Printf("removing connection %q", client.id)
			rs.removeClient(client)
		case id := <-rs.unloadRoomChan:
			rs.unloadRoom(id, true)
		case <-rs.stop:
			rs.log.Println("shutting down rooms")
			for _, r := range rs.rooms {
				done := make(chan bool)
				r.exit <- exitReq{deleted: false, done: done}
				<-done
			}

			close(rs.done)
			return
		}
	}
}

func (rs *RoomServer) handleJoin(joinMsg *ClientMessage) {
	var roomId string
	switch {
	case joinMsg.CreateRoom != nil:
		room, err := rs.CreateRoom(context.Background())
		if err != nil {
			rs.log.Println("create room:", err)
			joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
			return
		}
		roomId = room.Id
	case joinMsg.Join != nil:
		roomId = joinMsg.Join.RoomId
	default:
		return
	}

	if room, ok := rs.rooms[roomId]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			rs.log.Printf("join channel full on room %q", room.id)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	state, err := rs.store.Get(ctx, roomId)
	if errors.Is(err, store.ErrRoomNotFound) && joinMsg.Join != nil {
		// join-room creates the room on demand when it doesn't exist yet
		state, err = rs.createRoomWithId(ctx, roomId)
	}
	if err != nil {
		rs.log.Printf("load room %q: %v", roomId, err)
		joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
		return
	}

	room := rs.spawnRoom(state)
	room.joinChan <- joinMsg
}

// CreateRoom generates a collision-free short room id and persists an
// initialized room. Safe under concurrent callers: id generation retries
// until the store confirms the candidate is unused, and the final Set is
// keyed by that id.
func (rs *RoomServer) CreateRoom(ctx context.Context) (*types.Room, error) {
	for attempt := 0; attempt < maxIdAttempts; attempt++ {
		id, err := shortid.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate room id: %w", err)
		}

		exists, err := rs.store.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check room id %q: %w", id, err)
		}
		if exists {
			continue
		}

		return rs.createRoomWithId(ctx, id)
	}

	return nil, fmt.Errorf("no unused room id after %d attempts", maxIdAttempts)
}

func (rs *RoomServer) createRoomWithId(ctx context.Context, id string) (*types.Room, error) {
	now := rs.clock.Now()
	state := &types.Room{
		Id:        id,
		Clients:   make([]types.Client, 0, 8),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := rs.store.Set(ctx, state); err != nil {
		return nil, fmt.Errorf("persist room %q: %w", id, err)
	}
	return state, nil
}

// GetRoom reads current room state straight from the store.
func (rs *RoomServer) GetRoom(ctx context.Context, id string) (*types.Room, error) {
	return rs.store.Get(ctx, id)
}

func (rs *RoomServer) spawnRoom(state *types.Room) *Room {
	room := &Room{
		id:        state.Id,
		rs:        rs,
		state:     state,
		clients:   make(map[*Client]struct{}),
		joinChan:  make(chan *ClientMessage, 256),
		leaveChan: make(chan *ClientMessage, 256),
		cmdChan:   make(chan *ClientMessage, 256),
		log:       rs.log,
		exit:      make(chan exitReq),
		done:      make(chan struct{}),
	}

	rs.rooms[room.id] = room
	rs.stats.Incr(stats.ActiveRooms)
	go room.start()

	return room
}

func (rs *RoomServer) unloadRoom(roomId string, deleted bool) {
	r, ok := rs.rooms[roomId]
	if !ok {
		return
	}

	rs.log.Printf("removing room %q", r.id)
	delete(rs.rooms, roomId)
	rs.stats.Decr(stats.ActiveRooms)

	done := make(chan bool)
	r.exit <- exitReq{deleted: deleted, done: done}
	<-done
}

func (rs *RoomServer) addClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()
	rs.clients[c] = struct{}{}
	rs.stats.Incr(stats.ConnectedClients)
}

func (rs *RoomServer) removeClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()
	if _, ok := rs.clients[c]; ok {
		delete(rs.clients, c)
		rs.stats.Decr(stats.ConnectedClients)
	}
}

func (rs *RoomServer) Shutdown(ctx context.Context) error {
	rs.log.Println("received shutdown signal")

	rs.clientsLock.Lock()
	for c := range rs.clients {
		c.stopClient()
	}
	rs.clientsLock.Unlock()

	close(rs.stop)

	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("room server shutdown: %w", ctx.Err())
	}
}

// Clock exposes the synchronized clock for the HTTP latency exchange.
func (rs *RoomServer) Clock() *clock.Clock { return rs.clock }
