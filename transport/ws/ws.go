// Package ws adapts a gorilla/websocket connection into a
// replication.Transport, with a golang-jwt/v5 bearer handshake gating
// connection acceptance — the concrete peer-to-peer transport spec §1
// treats as an external collaborator behind the replication driver's
// Transport interface.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/replication"
)

// wireFrame is the JSON envelope carried over the websocket connection;
// replication.WireMessage.Payload is opaque bytes produced by a
// serialize.Provider and is base64-safe inside JSON via []byte's
// default marshaling.
type wireFrame struct {
	Kind    uint8  `json:"kind"`
	NetId   int64  `json:"netId"`
	TypeID  uint32 `json:"typeId"`
	Payload []byte `json:"payload"`
}

// Transport sends replication.WireMessages over one gorilla/websocket
// connection.
type Transport struct {
	conn *websocket.Conn
}

// Dial connects to url, attaching a signed JWT bearer token to the
// handshake request (Authorization: Bearer <token>), matching the
// teacher's golang-jwt/v5 usage for service-to-service auth.
func Dial(ctx context.Context, url string, signingKey []byte, claims jwt.Claims) (*Transport, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return nil, errkind.Wrap(errkind.Misuse, "ws: failed to sign handshake token", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+signed)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errkind.Wrap(errkind.Conflict, "ws: dial failed", err)
	}
	return &Transport{conn: conn}, nil
}

// VerifyHandshake checks a bearer token against signingKey, for server-
// side accept paths. Returns the parsed claims on success.
func VerifyHandshake(r *http.Request, signingKey []byte) (jwt.MapClaims, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authz) <= len(prefix) || authz[:len(prefix)] != prefix {
		return nil, errkind.Misused("ws: missing bearer token")
	}
	raw := authz[len(prefix):]

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Conflict, "ws: handshake token invalid", err)
	}
	return claims, nil
}

// Send implements replication.Transport.
func (t *Transport) Send(msg replication.WireMessage) error {
	frame := wireFrame{Kind: uint8(msg.Kind), NetId: int64(msg.NetId), TypeID: uint32(msg.TypeID), Payload: msg.Payload}
	b, err := json.Marshal(frame)
	if err != nil {
		return errkind.Wrap(errkind.Invariant, "ws: failed to marshal wire frame", err)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return errkind.Wrap(errkind.Conflict, "ws: send failed", err)
	}
	return nil
}

// ReadInto blocks for the next inbound frame and pushes it onto inbox.
// Intended to run in a dedicated goroutine per spec §5 ("the transport
// may be called from a background thread").
func (t *Transport) ReadInto(inbox *replication.Inbox) error {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return errkind.Wrap(errkind.Conflict, "ws: read failed", err)
	}
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return errkind.Wrap(errkind.SchemaMismatch, "ws: malformed wire frame", err)
	}
	inbox.Push(replication.WireMessage{
		Kind:    replication.MessageKind(frame.Kind),
		NetId:   entity.NetId(frame.NetId),
		TypeID:  entity.TypeID(frame.TypeID),
		Payload: frame.Payload,
	})
	return nil
}

func (t *Transport) Close() error { return t.conn.Close() }
