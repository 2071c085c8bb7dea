package broker

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fleettrack/internal/auth"
	"fleettrack/internal/cache"
	"fleettrack/internal/domain"
	"fleettrack/internal/geo"
	"fleettrack/internal/ingress"
	"fleettrack/internal/logging"
	"fleettrack/internal/metrics"
	"fleettrack/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 20 * time.Second
	pingPeriod     = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var clientIDCounter atomic.Uint64

// Deps is everything a Client needs to service its command surface,
// shared by every connection rather than dialed per-client.
type Deps struct {
	Hub    *Hub
	Cache  cache.Cacher
	Store  *store.Store
	Auth   *auth.Authenticator
	Ingest *ingress.Service
}

// Client is the middleman between one websocket connection and the hub,
// generalized from the teacher-pack's Client with an added Identity won
// from the handshake frame.
type Client struct {
	id   uint64
	deps *Deps
	conn *websocket.Conn
	send chan Frame

	identity *auth.Identity // nil until a valid auth_token handshake frame arrives
}

func NewClient(deps *Deps, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		deps: deps,
		conn: conn,
		send: make(chan Frame, sendBuffer),
	}
}

func (c *Client) Start() {
	c.deps.Hub.Register(c)
	metrics.WebSocketConnections.Inc()
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.deps.Hub.Unregister(c)
		metrics.WebSocketConnections.Dec()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Msg("broker: unexpected close")
			}
			return
		}

		if frame.AuthToken != "" {
			c.applyAuthToken(frame.AuthToken)
		}

		c.dispatch(frame)
	}
}

// applyAuthToken validates a token carried on an incoming frame. A valid
// token binds its identity to the session; an invalid one leaves the
// identity as it was (anonymous unless an earlier frame authenticated
// it). The connection is never rejected, per spec.md §4.F.
func (c *Client) applyAuthToken(token string) {
	identity, err := c.deps.Auth.Validate(context.Background(), token)
	if err != nil {
		return
	}
	c.identity = identity
}

func (c *Client) dispatch(frame Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch frame.Type {
	case CmdSubscribeVehicle:
		c.deps.Hub.Join(c, vehicleRoom(frame.VehicleID))
		c.sendSnapshot(ctx, frame.VehicleID)

	case CmdUnsubscribeVehicle:
		c.deps.Hub.Leave(c, vehicleRoom(frame.VehicleID))

	case CmdSubscribeFleet:
		c.deps.Hub.Join(c, "fleet:"+frame.FleetID)

	case CmdPushLocation:
		c.handlePushLocation(ctx, frame)

	case CmdGetNearby:
		c.handleGetNearby(ctx, frame)
	}
}

func (c *Client) sendSnapshot(ctx context.Context, vehicleID string) {
	if pos, ok, err := c.deps.Cache.Get(ctx, vehicleID); err == nil && ok {
		c.enqueue(Frame{Type: EventLocation, Payload: pos})
		return
	}
	if c.deps.Store == nil {
		return
	}
	pos, err := c.deps.Store.LatestPosition(ctx, vehicleID)
	if err != nil || pos == nil {
		return
	}
	c.enqueue(Frame{Type: EventLocation, Payload: pos})
}

// push:location is equivalent to the HTTP single-push endpoint (spec.md
// §4.F), so it is bound by the same bounds checks §4.G lays out for that
// endpoint before the frame ever reaches the gate/cache/log pipeline.
func (c *Client) handlePushLocation(ctx context.Context, frame Frame) {
	if c.identity == nil {
		c.enqueue(errorFrame("authentication required", ""))
		return
	}
	if err := validatePushLocation(frame); err != nil {
		c.enqueue(errorFrame(err.Error(), "validation"))
		return
	}

	pos := &domain.Position{
		VehicleID:  c.identity.VehicleID,
		Lat:        frame.Lat,
		Lng:        frame.Lng,
		SpeedKmh:   frame.SpeedKmh,
		HeadingDeg: frame.HeadingDeg,
		Timestamp:  time.Now(),
	}
	result, err := c.deps.Ingest.Push(ctx, pos)
	if err != nil {
		c.enqueue(errorFrame(err.Error(), ""))
		return
	}
	c.enqueue(Frame{Type: "ack", Payload: map[string]any{"verdict": result.Verdict}})
}

// validatePushLocation applies the same bounds push:location shares with
// the HTTP ingress endpoint: lat in [-90,90], lng in [-180,180], speed
// non-negative, heading in [0,360).
func validatePushLocation(frame Frame) error {
	switch {
	case frame.Lat < -90 || frame.Lat > 90:
		return fmt.Errorf("lat must be between -90 and 90")
	case frame.Lng < -180 || frame.Lng > 180:
		return fmt.Errorf("lng must be between -180 and 180")
	case frame.SpeedKmh < 0:
		return fmt.Errorf("speed_kmh must be non-negative")
	case frame.HeadingDeg < 0 || frame.HeadingDeg >= 360:
		return fmt.Errorf("heading_deg must be between 0 and 360")
	}
	return nil
}

func (c *Client) handleGetNearby(ctx context.Context, frame Frame) {
	if c.deps.Store == nil {
		c.enqueue(errorFrame("nearby query unavailable", ""))
		return
	}
	radiusKm := frame.RadiusKm
	if radiusKm <= 0 || radiusKm > 5 {
		radiusKm = 5
	}

	positions, public, err := c.deps.Store.RecentPublicPositions(ctx, time.Now().Add(-60*time.Second))
	if err != nil {
		c.enqueue(errorFrame(err.Error(), ""))
		return
	}

	type ranked struct {
		pos      *domain.Position
		distance float64
	}
	var nearby []ranked
	for _, p := range positions {
		if !public[p.VehicleID] {
			continue
		}
		d := geo.PlanarDistanceKm(frame.Lat, frame.Lng, p.Lat, p.Lng)
		if d <= radiusKm {
			nearby = append(nearby, ranked{pos: p, distance: d})
		}
	}
	for i := 1; i < len(nearby); i++ {
		for j := i; j > 0 && nearby[j].distance < nearby[j-1].distance; j-- {
			nearby[j], nearby[j-1] = nearby[j-1], nearby[j]
		}
	}
	if len(nearby) > 100 {
		nearby = nearby[:100]
	}

	out := make([]*domain.Position, len(nearby))
	for i, n := range nearby {
		out[i] = n.pos
	}
	c.enqueue(Frame{Type: EventNearby, Payload: out})
}

// enqueue drops the frame rather than blocking when the client's buffer
// is full, matching PushToRoom's back-pressure behavior.
func (c *Client) enqueue(frame Frame) {
	select {
	case c.send <- frame:
	default:
		logging.Warn().Uint64("client_id", c.id).Msg("broker: client send buffer full, dropping direct reply")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func vehicleRoom(id string) string { return "vehicle:" + strings.TrimSpace(id) }
