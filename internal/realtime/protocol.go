package realtime

import (
	"encoding/json"

	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/cardclash/battle-server-go/internal/game/rules"
)

// Client message types.
const (
	MsgSubscribeToGame     = "subscribeToGame"
	MsgUnsubscribeFromGame = "unsubscribeFromGame"
	MsgCreateGame          = "createGame"
	MsgJoinGame            = "joinGame"
	MsgPlaceCard           = "placeCard"
	MsgPerformAction       = "performAction"
	MsgEndTurn             = "endTurn"
	MsgForfeitGame         = "forfeitGame"
	MsgGetGame             = "getGame"
)

// Server message types.
const (
	MsgAck         = "ack"
	MsgGameUpdated = "gameUpdated"
)

// Request is a message sent by a client.
type Request struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Ack answers exactly one Request.
type Ack struct {
	Type      string     `json:"type"`
	RequestID string     `json:"requestId,omitempty"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	Code      string     `json:"code,omitempty"`
	Game      *game.View `json:"game,omitempty"`
}

// Push carries a committed session state to subscribers.
type Push struct {
	Type    string        `json:"type"`
	GameID  string        `json:"gameId"`
	Version int64         `json:"version"`
	Game    *game.View    `json:"game"`
	Events  []rules.Event `json:"events"`
}

type gameRef struct {
	GameID string `json:"gameId"`
}

type createGameData struct {
	OpponentID string `json:"opponentId,omitempty"`
}

// EncodePush renders an update as a gameUpdated message.
func EncodePush(u game.Update) ([]byte, error) {
	events := u.Events
	if events == nil {
		events = []rules.Event{}
	}
	return json.Marshal(Push{
		Type:    MsgGameUpdated,
		GameID:  u.Session.ID,
		Version: u.Session.Version,
		Game:    game.NewView(u.Session),
		Events:  events,
	})
}

func successAck(requestID string, s *game.Session) Ack {
	ack := Ack{Type: MsgAck, RequestID: requestID, Success: true}
	if s != nil {
		ack.Game = game.NewView(s)
	}
	return ack
}

func errorAck(requestID string, err error) Ack {
	ack := Ack{Type: MsgAck, RequestID: requestID, Code: game.CodeOf(err), Error: err.Error()}
	if game.KindOf(err) == game.KindInternal {
		ack.Error = "internal error"
	}
	return ack
}
