package http

import (
	"crypto/rand"
	"encoding/json"
	"log"
	"math/big"
	"net/http"

	"trivia-room-service/internal/app"
)

// codeAlphabet omits I, O, 0 and 1 so codes stay readable on a projector.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 5

type RoomsHandler struct {
	service *app.RoomService
}

func NewRoomsHandler(service *app.RoomService) *RoomsHandler {
	return &RoomsHandler{service: service}
}

// CreateRoom handles POST /api/rooms: mints a fresh code and eagerly
// initializes the room so the first websocket attach finds it durable.
func (h *RoomsHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var code string
	for {
		c, err := generateCode()
		if err != nil {
			http.Error(w, "failed to generate code", http.StatusInternalServerError)
			return
		}
		if _, taken := h.service.Get(c); !taken {
			code = c
			break
		}
	}

	if _, err := h.service.GetOrCreate(r.Context(), code); err != nil {
		log.Printf("create room %s: %v", code, err)
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		Code string `json:"code"`
	}{Code: code})
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
