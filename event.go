package iodispatch

import (
	"strconv"
)

type EventType string

const (
	EventConnected    EventType = "connected"
	EventRejected     EventType = "rejected"
	EventDisconnected EventType = "disconnected"
)

// Event describes a connection lifecycle change. Events leave the dispatcher
// through an EventRouter and never feed back into it.
type Event struct {
	Id          string    `json:"id"`
	Timestamp   int64     `json:"timestamp"`
	Type        EventType `json:"type"`
	Fd          int       `json:"fd"`
	Reason      string    `json:"reason,omitempty"`
	Connections int64     `json:"connections"`
}

func genConnEvent(eventType EventType, timestamp int64, fd int, connections int64) Event {
	return Event{
		Id:          eventType.key(fd, timestamp),
		Timestamp:   timestamp,
		Type:        eventType,
		Fd:          fd,
		Connections: connections,
	}
}

func genDisconnectEvent(timestamp int64, fd int, reason DisconnectReason, connections int64) Event {
	event := genConnEvent(EventDisconnected, timestamp, fd, connections)
	event.Reason = reason.String()
	return event
}

func (t EventType) key(fd int, timestamp int64) string {
	return string(t) + ":" + strconv.Itoa(fd) + ":" + strconv.FormatInt(timestamp, 10)
}
