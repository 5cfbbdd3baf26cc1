package server

import (
	"log"
	"strings"

	"github.com/gofiber/contrib/websocket"

	"collab-backend/internal/auth"
	"collab-backend/internal/authority"
	"collab-backend/internal/model"
	"collab-backend/internal/observability"
	"collab-backend/internal/protocol"
	"collab-backend/internal/transport"
)

// handleRoomSocket bridges one websocket connection into the room
// authority. The connection id is minted here and stamped on every
// inbound frame; whatever sender the client claims is ignored.
func (s *Server) handleRoomSocket(conn *websocket.Conn) {
	roomKey, _ := conn.Locals("roomKey").(string)
	claims, _ := conn.Locals("claims").(*auth.RoomClaims)
	if roomKey == "" || claims == nil {
		conn.Close()
		return
	}

	kind := kindFromRoomKey(roomKey)
	connID := model.NewConnectionID()

	ch := transport.NewWSChannel(conn, connID, s.cfg.WebSocket.WriteTimeout)
	room := s.hub.GetOrCreateRoom(roomKey, kind)

	presence := model.Presence{
		ConnectionID: connID,
		DisplayName:  claims.DisplayName,
		AvatarRef:    claims.AvatarRef,
		Role:         claims.Role,
	}

	ch.OnData(func(sender string, payload []byte) {
		s.routeFrame(room, connID, payload)
	})

	if err := room.Join(authority.Subscriber{ID: connID, Channel: ch, Presence: presence}); err != nil {
		log.Printf("[WS] Join failed for %s on %s: %v", connID, roomKey, err)
		ch.Close()
		return
	}

	observability.IncWSActive(kind.String())
	log.Printf("[WS] Connected: %s (%s) to %s", connID, claims.DisplayName, roomKey)

	defer func() {
		room.Leave(connID)
		ch.Close()
		observability.DecWSActive(kind.String())
		log.Printf("[WS] Disconnected: %s from %s", connID, roomKey)
	}()

	ch.ReadLoop()
}

// routeFrame dispatches one client frame into the room. Malformed
// frames are dropped; the connection stays up.
func (s *Server) routeFrame(room *authority.Room, connID string, payload []byte) {
	env, err := protocol.Decode(payload)
	if err != nil {
		observability.IncMalformedDropped()
		log.Printf("[WS] Dropping frame from %s: %v", connID, err)
		return
	}
	if env.Room != room.Key() {
		log.Printf("[WS] Dropping frame from %s for foreign room %q", connID, env.Room)
		return
	}

	switch env.Type {
	case protocol.EventIntent:
		op, err := protocol.DecodeOp(env)
		if err != nil {
			observability.IncMalformedDropped()
			log.Printf("[WS] Dropping intent from %s: %v", connID, err)
			return
		}
		room.HandleIntent(connID, op)
	case protocol.EventPresence:
		rec, err := protocol.DecodePresence(env)
		if err != nil {
			observability.IncMalformedDropped()
			return
		}
		// The edge owns identity: force the record onto the minted id.
		rec.ConnectionID = connID
		room.HandlePresence(connID, rec)
	case protocol.EventBroadcast:
		ev, err := protocol.DecodeAppEvent(env)
		if err != nil {
			observability.IncMalformedDropped()
			return
		}
		room.HandleBroadcast(connID, ev)
	default:
		// Effects, snapshots and membership frames only flow outward.
		log.Printf("[WS] Dropping unexpected %s frame from %s", env.Type, connID)
	}
}

func kindFromRoomKey(roomKey string) model.RoomKind {
	if strings.HasSuffix(roomKey, "-"+model.RoomKindChat.String()) {
		return model.RoomKindChat
	}
	return model.RoomKindWhiteboard
}
