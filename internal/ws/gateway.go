package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/observability"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
)

// Gateway upgrades client connections and subscribes them to realtime
// channels. Personal and presence channels are covered by the grant;
// conversation channels require a participant check.
type Gateway struct {
	hub              *Hub
	conversationRepo repositories.ConversationRepository
	sessions         *auth.Verifier
	grants           *realtime.TokenIssuer
	events           *observability.EventsEmitter
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, conversationRepo repositories.ConversationRepository, sessions *auth.Verifier, grants *realtime.TokenIssuer, events *observability.EventsEmitter) *Gateway {
	return &Gateway{
		hub:              hub,
		conversationRepo: conversationRepo,
		sessions:         sessions,
		grants:           grants,
		events:           events,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleConversation subscribes the caller to a conversation channel.
func (g *Gateway) HandleConversation(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID, err := g.identify(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := g.conversationRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	g.serve(c, realtime.ConversationChannel(conversationID), userID)
}

// HandleUserFeed subscribes the caller to their personal conversations
// channel. The channel is derived from the verified identity, never from
// request input.
func (g *Gateway) HandleUserFeed(c *gin.Context) {
	userID, err := g.identify(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	g.serve(c, realtime.UserConversationsChannel(userID), userID)
}

// HandlePresence subscribes the caller to the shared presence channel.
func (g *Gateway) HandlePresence(c *gin.Context) {
	userID, err := g.identify(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	g.serve(c, realtime.PresenceChannel, userID)
}

// identify resolves the caller from a realtime grant (?token=) or a
// bearer session token.
func (g *Gateway) identify(c *gin.Context) (int, error) {
	if token := c.Query("token"); token != "" {
		claims, err := g.grants.Verify(token)
		if err != nil {
			return 0, err
		}
		return claims.UserID, nil
	}

	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return g.sessions.Verify(parts[1])
	}
	return 0, errors.New("missing credential")
}

func (g *Gateway) serve(c *gin.Context, channel string, userID int) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	kind := channelKind(channel)
	meta := observability.MetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.ClientIP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	g.hub.Add(channel, conn, info)

	observability.IncWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	_ = g.events.Emit(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   wsEventPayload(kind, channel, "ws_connect", info, ""),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))

	// Keep connection alive and clean on close. The request context dies
	// with the handler, so emits from the read loop use a fresh one.
	go func() {
		emitCtx := context.Background()
		var closeReason string
		defer func() {
			g.hub.Remove(channel, conn)
			observability.DecWSActive(kind)
			observability.IncWSEvent(kind, "ws_disconnect")
			_ = g.events.Emit(emitCtx, wsRoutingKey(kind), observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload:   wsEventPayload(kind, channel, "ws_disconnect", info, closeReason),
			}, observability.BuildHeaders(info.RequestID, info.TraceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent(kind, "ws_error")
					_ = g.events.Emit(emitCtx, wsRoutingKey(kind), observability.EventEnvelope{
						EventType: "ws_events",
						EventName: "ws_error",
						Payload:   wsEventPayload(kind, channel, "ws_error", info, closeReason),
					}, observability.BuildHeaders(info.RequestID, info.TraceID))
				}
				return
			}
		}
	}()
}
