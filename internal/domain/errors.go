package domain

import "errors"

var (
	// ErrInvalidJoin is returned when a handshake carries a bad role or a
	// player joins without a name; the connection is refused.
	ErrInvalidJoin = errors.New("invalid join: bad role or missing player name")
	// ErrRoomNotFound is returned when a room code has never been created.
	ErrRoomNotFound = errors.New("room not found")
	// ErrBankNotFound indicates the question bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrPersistence indicates a durable write did not complete; the
	// triggering mutation has been rolled back and was not broadcast.
	ErrPersistence = errors.New("room persistence failed")
)
