package model

import "fmt"

// RoomKind identifies which shared document variant a room carries.
type RoomKind string

const (
	RoomKindWhiteboard RoomKind = "whiteboard"
	RoomKindChat       RoomKind = "chat"
)

func (k RoomKind) String() string {
	return string(k)
}

// Valid reports whether the kind is one of the known variants.
func (k RoomKind) Valid() bool {
	return k == RoomKindWhiteboard || k == RoomKindChat
}

// RoomKey builds the stable key for one collaborative context.
// The same classroom session carries separate rooms per purpose, e.g.
// "classroom-algebra-101-session-7-whiteboard".
func RoomKey(classroomSlug, sessionID string, kind RoomKind) string {
	return fmt.Sprintf("classroom-%s-session-%s-%s", classroomSlug, sessionID, kind)
}
