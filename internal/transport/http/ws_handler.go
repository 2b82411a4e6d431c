package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/websocket"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{5}$`)

const maxNameLength = 24

type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// inboundMessage is the closed set of client messages. Fields are flat;
// anything that fails to parse into a known shape is dropped.
type inboundMessage struct {
	Type         string `json:"type"`
	Role         string `json:"role,omitempty"`
	Name         string `json:"name,omitempty"`
	Phase        string `json:"phase,omitempty"`
	TimerSeconds *int   `json:"timerSeconds,omitempty"`
	Idx          *int   `json:"idx,omitempty"`
}

type stateMessage struct {
	Type  string          `json:"type"`
	State domain.Snapshot `json:"state"`
}

// ServeWS upgrades GET /api/rooms/{code}/ws and attaches the connection to
// its room. Handshake: role=host|player required, name required for players.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !roomCodePattern.MatchString(code) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	role := domain.Role(r.URL.Query().Get("role"))
	name := truncateName(r.URL.Query().Get("name"))

	room, err := h.service.GetOrCreate(r.Context(), code)
	if err != nil {
		log.Printf("room %s init failed: %v", code, err)
		http.Error(w, "room unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client, err := room.Attach(r.Context(), role, name)
	if err != nil {
		closeWithReason(conn, err)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for snap := range client.Updates() {
			if err := conn.WriteJSON(stateMessage{Type: "STATE", State: snap}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Unparsable payloads never crash the room.
			continue
		}
		if err := h.dispatch(r, room, client, msg); err != nil {
			log.Printf("room %s %s: %v", code, msg.Type, err)
		}
	}

	// Detach closes the update channel, which lets the writer drain and exit.
	if err := room.Detach(r.Context(), client); err != nil {
		log.Printf("room %s detach: %v", code, err)
	}
	<-writerDone
}

// dispatch applies one inbound message. Validation failures inside the room
// are silent no-ops; only persistence faults surface as errors.
func (h *WSHandler) dispatch(r *http.Request, room *app.Room, client *app.Conn, msg inboundMessage) error {
	ctx := r.Context()
	switch msg.Type {
	case "HELLO":
		// Identification already happened at attach.
		return nil
	case "GET_STATE":
		room.SendState(client)
		return nil
	case "SET_TIMER":
		if msg.TimerSeconds == nil {
			return nil
		}
		return room.SetTimer(ctx, client, *msg.TimerSeconds)
	case "SET_PHASE":
		return room.SetPhase(ctx, client, msg.Phase)
	case "NEXT_QUESTION":
		return room.NextQuestion(ctx, client)
	case "RESET_GAME":
		return room.ResetGame(ctx, client)
	case "ANSWER":
		if msg.Idx == nil {
			return nil
		}
		return room.SubmitAnswer(ctx, client, *msg.Idx)
	default:
		// Unknown types are dropped without a reply.
		return nil
	}
}

func closeWithReason(conn *websocket.Conn, err error) {
	code := websocket.ClosePolicyViolation
	reason := "bad role or missing name"
	if errors.Is(err, domain.ErrPersistence) {
		code = websocket.CloseInternalServerErr
		reason = "room unavailable"
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) > maxNameLength {
		return string(runes[:maxNameLength])
	}
	return name
}
