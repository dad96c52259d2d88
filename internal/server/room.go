package server

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/spksound/syncroom/internal/playback"
	"github.com/spksound/syncroom/internal/spatial"
	"github.com/spksound/syncroom/internal/stats"
	"github.com/spksound/syncroom/internal/types"
)

const persistTimeout = 5 * time.Second

type exitReq struct {
	deleted bool
	done    chan bool
}

// Room is the live context for one synchronization room. A single goroutine
// runs the event loop, so all mutation of state is serialized; the only
// suspension points are the deferred-command timers and the spatial motion
// tick.
type Room struct {
	id         string
	rs         *RoomServer
	state      *types.Room
	clients    map[*Client]struct{}
	clientLock sync.RWMutex

	joinChan  chan *ClientMessage
	leaveChan chan *ClientMessage
	cmdChan   chan *ClientMessage

	// spatialTicker drives the motion loop; nil while spatial mode is off.
	// tick aliases its channel so the select case disables itself when the
	// ticker is stopped.
	spatialTicker *time.Ticker
	tick          <-chan time.Time
	tickCount     int

	// pending holds deferred commands ordered by execution time, then by
	// receipt sequence, so equal execution times apply in receipt order. A
	// single timer armed for the head keeps firing inside the event loop.
	pending    []*ClientMessage
	cmdSeq     uint64
	schedTimer *time.Timer
	schedC     <-chan time.Time

	log  *log.Logger
	exit chan exitReq
	done chan struct{}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)
	defer close(r.done)

	if r.state.Spatial.Enabled {
		// recovered from a persisted snapshot mid-orbit
		r.startSpatial()
	}

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.cmdChan:
			r.handleCommand(msg)
		case <-r.schedC:
			r.handleDue()
		case <-r.tick:
			r.handleSpatialTick()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

// handleCommand applies a client command, deferring it first when it
// carries a future execution timestamp. Deferred commands sit in the
// room's pending queue and are applied by handleDue when the schedule
// timer fires, so application is still serialized; a past or absent
// timestamp executes immediately.
func (r *Room) handleCommand(msg *ClientMessage) {
	if execAt := executeAtOf(msg); execAt > 0 && !msg.scheduled {
		if delay := time.UnixMilli(execAt).Sub(r.rs.clock.Now()); delay > 0 {
			r.rs.stats.Incr(stats.ScheduledCommands)
			if msg.client != nil {
				msg.client.queueMessage(NoErrAccepted(msg.Id))
			}
			r.deferCommand(msg)
			return
		}
	}

	switch {
	case msg.Play != nil:
		r.handlePlay(msg)
	case msg.Pause != nil:
		r.handlePause(msg)
	case msg.Seek != nil:
		r.handleSeek(msg)
	case msg.Stop != nil:
		r.handleStop(msg)
	case msg.ToggleSpatial != nil:
		r.handleToggleSpatial(msg)
	case msg.SourcePos != nil:
		r.handleSourcePos(msg)
	case msg.Sync != nil:
		r.handleSync(msg)
	}
}

func executeAtOf(msg *ClientMessage) int64 {
	switch {
	case msg.Play != nil:
		return msg.Play.ExecuteAt
	case msg.Pause != nil:
		return msg.Pause.ExecuteAt
	case msg.Seek != nil:
		return msg.Seek.ExecuteAt
	}
	return 0
}

// deferCommand queues msg for execution at its timestamp. The queue is
// kept sorted by (execution time, receipt sequence): the sequence breaks
// ties so commands carrying the same timestamp apply in receipt order.
func (r *Room) deferCommand(msg *ClientMessage) {
	msg.scheduled = true
	msg.seq = r.cmdSeq
	r.cmdSeq++

	r.pending = append(r.pending, msg)
	sort.SliceStable(r.pending, func(i, j int) bool {
		ei, ej := executeAtOf(r.pending[i]), executeAtOf(r.pending[j])
		if ei != ej {
			return ei < ej
		}
		return r.pending[i].seq < r.pending[j].seq
	})

	r.armSchedule()
}

// handleDue applies every pending command whose execution time has passed,
// in queue order, then re-arms the timer for the next one.
func (r *Room) handleDue() {
	now := r.rs.clock.Now().UnixMilli()
	for len(r.pending) > 0 && executeAtOf(r.pending[0]) <= now {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.handleCommand(msg)
	}

	r.armSchedule()
}

// armSchedule points the schedule timer at the head of the pending queue,
// or disarms it when the queue is empty.
func (r *Room) armSchedule() {
	if len(r.pending) == 0 {
		r.stopSchedule()
		return
	}

	delay := time.UnixMilli(executeAtOf(r.pending[0])).Sub(r.rs.clock.Now())
	if delay < 0 {
		delay = 0
	}

	if r.schedTimer == nil {
		r.schedTimer = time.NewTimer(delay)
		r.schedC = r.schedTimer.C
		return
	}

	if !r.schedTimer.Stop() {
		select {
		case <-r.schedTimer.C:
		default:
		}
	}
	r.schedTimer.Reset(delay)
}

// stopSchedule disarms the schedule timer. Idempotent.
func (r *Room) stopSchedule() {
	if r.schedTimer == nil {
		return
	}

	if !r.schedTimer.Stop() {
		select {
		case <-r.schedTimer.C:
		default:
		}
	}
	r.schedTimer = nil
	r.schedC = nil
}

func (r *Room) handlePlay(msg *ClientMessage) {
	play := msg.Play

	if play.MediaURL != "" && play.MediaURL != r.state.Playback.MediaURL {
		result, err := r.rs.transcoder.Convert(context.Background(), play.MediaURL)
		if err != nil {
			r.log.Printf("room %q: transcode %q: %v", r.id, play.MediaURL, err)
			r.respond(msg, ErrUpstreamFailure(msg.Id, "media conversion failed"))
			return
		}

		r.state.Playback = types.Playback{
			MediaURL:  play.MediaURL,
			StreamURL: result.StreamURL,
			Duration:  result.Duration,
			Segments:  result.Segments,
		}
	}

	resumeFrom := int64(-1)
	if play.ResumeFrom != nil {
		resumeFrom = *play.ResumeFrom
	}

	if err := playback.Play(&r.state.Playback, r.rs.clock.Now(), resumeFrom, play.Duration); err != nil {
		r.respond(msg, ErrPreconditionFailed(msg.Id, err.Error()))
		return
	}

	r.persist()
	r.respond(msg, NoErrOK(msg.Id, nil))
	r.broadcastPlayback()
}

func (r *Room) handlePause(msg *ClientMessage) {
	if err := playback.Pause(&r.state.Playback, r.rs.clock.Now()); err != nil {
		r.respond(msg, ErrPreconditionFailed(msg.Id, err.Error()))
		return
	}

	r.persist()
	r.respond(msg, NoErrOK(msg.Id, nil))
	r.broadcastPlayback()
}

func (r *Room) handleSeek(msg *ClientMessage) {
	if err := playback.Seek(&r.state.Playback, r.rs.clock.Now(), msg.Seek.Position); err != nil {
		r.respond(msg, ErrPreconditionFailed(msg.Id, err.Error()))
		return
	}

	r.persist()
	r.respond(msg, NoErrOK(msg.Id, nil))
	r.broadcastPlayback()
}

func (r *Room) handleStop(msg *ClientMessage) {
	playback.Stop(&r.state.Playback)
	r.persist()
	r.respond(msg, NoErrOK(msg.Id, nil))
	r.broadcastPlayback()
}

func (r *Room) handleToggleSpatial(msg *ClientMessage) {
	if msg.ToggleSpatial.Enable {
		r.state.Spatial.Enabled = true
		r.startSpatial()
	} else {
		r.stopSpatial()
		r.state.Spatial = types.Spatial{}
	}

	r.persist()
	r.respond(msg, NoErrOK(msg.Id, nil))
	// one snapshot right away; while enabled the ticker takes over
	r.broadcastSpatial()
}

func (r *Room) handleSourcePos(msg *ClientMessage) {
	if r.spatialTicker != nil {
		r.respond(msg, ErrPreconditionFailed(msg.Id, "source is auto-orbiting"))
		return
	}

	r.state.Spatial.Source = msg.SourcePos.Position
	r.persist()
	r.respond(msg, NoErrOK(msg.Id, nil))
	r.broadcastSpatial()
}

func (r *Room) handleSync(msg *ClientMessage) {
	r.respond(msg, NoErrOK(msg.Id, r.snapshot()))
}

// startSpatial begins the motion loop. Calling it with the ticker already
// running is a no-op, which makes repeated enables harmless.
func (r *Room) startSpatial() {
	if r.spatialTicker != nil {
		return
	}

	r.spatialTicker = time.NewTicker(r.rs.spatialCfg.TickInterval)
	r.tick = r.spatialTicker.C
}

// stopSpatial cancels the motion loop. Idempotent: stopping a stopped loop
// is a no-op, not an error.
func (r *Room) stopSpatial() {
	if r.spatialTicker == nil {
		return
	}

	r.spatialTicker.Stop()
	r.spatialTicker = nil
	r.tick = nil
}

func (r *Room) handleSpatialTick() {
	cfg := r.rs.spatialCfg
	r.state.Spatial.Step = (r.state.Spatial.Step + 1) % cfg.OrbitPeriod
	r.state.Spatial.Source = spatial.Orbit(r.state.Spatial.Step, cfg.OrbitPeriod, cfg.Radius)

	r.broadcastSpatial()
	r.rs.stats.Incr(stats.SpatialTicks)

	// the broadcast is the source of truth for connected clients; the
	// persisted copy is only a recovery snapshot, so write it on a reduced
	// cadence
	r.tickCount++
	if r.tickCount%cfg.PersistEvery == 0 {
		r.persist()
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	c := join.client
	username := ""
	switch {
	case join.CreateRoom != nil:
		username = join.CreateRoom.Username
	case join.Join != nil:
		username = join.Join.Username
	}

	now := r.rs.clock.Now()

	// identity is per-room by username: a second connection with the same
	// name takes over and the prior member is evicted
	if prev, ok := r.state.ClientByUsername(username); ok {
		r.log.Printf("evicting client %q (%s) from room %q, username taken over", username, prev.Id, r.id)
		r.state.RemoveClientById(prev.Id)
		r.evictConnection(prev.Id)
	}

	r.state.AddClient(types.Client{
		Id:         c.id,
		Username:   username,
		JoinedAt:   now,
		LateJoiner: r.state.Playback.Enabled,
	})
	r.recomputePositions()

	r.addClient(c)
	r.persist()

	data := r.snapshot()
	data["client_id"] = c.id
	c.queueMessage(NoErrOK(join.Id, data))
	r.broadcast(&ServerMessage{
		RoomUpdate: &RoomUpdate{
			RoomId:  r.id,
			Clients: r.state.Clients,
		},
	})

	if r.state.Playback.Enabled {
		r.lateJoinerSync(c)
	}
}

// lateJoinerSync unicasts the catch-up point to a client that joined while
// playback was already running.
func (r *Room) lateJoinerSync(c *Client) {
	sp := playback.Locate(&r.state.Playback, r.rs.clock.Now())
	if sp.Degraded {
		r.log.Printf("room %q: late joiner %q elapsed %dms outside known segments, sync degraded", r.id, c.id, sp.Elapsed)
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		LateJoin:    &sp,
	})
	r.rs.stats.Incr(stats.LateJoinerSyncs)
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client
	r.removeClient(c)
	r.state.RemoveClientById(c.id)

	if leaveMsg.Leave != nil && leaveMsg.Leave.RoomId != "" {
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	if len(r.state.Clients) == 0 {
		r.log.Printf("room %q is empty, tearing down", r.id)
		select {
		case r.rs.unloadRoomChan <- r.id:
		default:
			r.log.Printf("unload channel full for room %q", r.id)
		}
		return
	}

	r.recomputePositions()
	r.persist()
	r.broadcast(&ServerMessage{
		RoomUpdate: &RoomUpdate{
			RoomId:  r.id,
			Clients: r.state.Clients,
		},
	})
}

// handleRoomExit is the single teardown path: cancel the motion loop,
// release transcoded artifacts owned by the room, and delete the persisted
// state. Every step is idempotent.
func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.id)
	r.stopSpatial()
	r.stopSchedule()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if e.deleted {
		if url := r.state.Playback.StreamURL; url != "" {
			if err := r.rs.transcoder.Release(ctx, url); err != nil {
				r.log.Printf("room %q: release stream %q: %v", r.id, url, err)
			}
		}

		if err := r.rs.store.Delete(ctx, r.id); err != nil {
			r.log.Printf("room %q: delete persisted state: %v", r.id, err)
		}
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	r.clientLock.Unlock()

	if e.done != nil {
		e.done <- true
	}
}

// evictConnection drops the live connection belonging to an evicted member.
func (r *Room) evictConnection(clientId string) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	for c := range r.clients {
		if c.id == clientId {
			delete(r.clients, c)
			c.delRoom(r.id)
			c.queueMessage(ErrPreconditionFailed(0, "username taken over by another connection"))
			return
		}
	}
}

func (r *Room) recomputePositions() {
	positions := spatial.Layout(len(r.state.Clients), r.rs.spatialCfg.Radius)
	for i := range r.state.Clients {
		r.state.Clients[i].Position = positions[i]
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	c.setRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		r.log.Printf("client %q not found in room %q", c.id, r.id)
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)
}

// persist runs the read-modify-write cycle's write leg. There is no
// compare-and-swap on the store: concurrent writers to the same room race
// and the last write wins. The version counter exists to make that race
// observable, not to prevent it.
func (r *Room) persist() {
	r.state.Version++
	r.state.UpdatedAt = r.rs.clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.rs.store.Set(ctx, r.state); err != nil {
		r.log.Printf("room %q: persist: %v", r.id, err)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	msg.Timestamp = Now()

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}

func (r *Room) respond(msg *ClientMessage, resp *ServerMessage) {
	if msg.client != nil {
		msg.client.queueMessage(resp)
	}
}

func (r *Room) broadcastPlayback() {
	now := r.rs.clock.Now()
	r.broadcast(&ServerMessage{
		PlaybackUpdate: &PlaybackUpdate{
			RoomId:        r.id,
			State:         playback.StateOf(&r.state.Playback).String(),
			Elapsed:       playback.Elapsed(&r.state.Playback, now),
			Duration:      r.state.Playback.Duration,
			StreamURL:     r.state.Playback.StreamURL,
			ReferenceTime: now,
		},
	})
}

func (r *Room) broadcastSpatial() {
	r.broadcast(&ServerMessage{
		SpatialUpdate: r.spatialSnapshot(),
	})
}

func (r *Room) spatialSnapshot() *SpatialUpdate {
	positions := make(map[string]types.Vec2, len(r.state.Clients))
	for _, c := range r.state.Clients {
		positions[c.Id] = c.Position
	}

	gc := spatial.GainConfig{
		Radius:   r.rs.spatialCfg.Radius,
		Floor:    r.rs.spatialCfg.GainFloor,
		Exponent: r.rs.spatialCfg.GainExponent,
	}

	return &SpatialUpdate{
		RoomId:    r.id,
		Enabled:   r.state.Spatial.Enabled,
		Source:    r.state.Spatial.Source,
		Positions: positions,
		Gains:     gc.Gains(r.state.Clients, r.state.Spatial.Source, r.state.Spatial.Enabled),
		Elapsed:   playback.Elapsed(&r.state.Playback, r.rs.clock.Now()),
	}
}

// snapshot is the full room state a client receives on join or on an
// explicit sync request.
func (r *Room) snapshot() map[string]any {
	now := r.rs.clock.Now()
	return map[string]any{
		"room_id":        r.id,
		"clients":        r.state.Clients,
		"playback_state": playback.StateOf(&r.state.Playback).String(),
		"elapsed_ms":     playback.Elapsed(&r.state.Playback, now),
		"duration_ms":    r.state.Playback.Duration,
		"stream_url":     r.state.Playback.StreamURL,
		"spatial":        r.spatialSnapshot(),
		"reference_time": now,
	}
}
