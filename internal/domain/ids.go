// Package domain contains entity without logic, just meta-data
package domain

type (
	// ClientID is the identifier a client declares via an identify message.
	ClientID string
	// RoomID is a caller-supplied room name; a room exists only while it
	// has members.
	RoomID string
)
