// Package model defines the wire types shared by the listener, probe and dispatcher.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ack is the acknowledgment returned for every accepted POST.
type Ack struct {
	Status string `json:"status"`
	Body   string `json:"body"`
}

// FixedAck is returned regardless of the request body. The spelling is part
// of the observable response and must not be corrected.
var FixedAck = Ack{Status: "Recieved", Body: "Recieved request"}

// ProbePayload is the JSON body sent by the startup probe.
type ProbePayload struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// FixedProbePayload is sent on every probe run.
var FixedProbePayload = ProbePayload{Name: "name2", Body: "body2"}

var (
	// ErrUnknownTarget is returned by ParseTarget for unrecognized names.
	ErrUnknownTarget = errors.New("unknown message target")
	// ErrUnknownLevel is returned by ParseLevel for unrecognized names.
	ErrUnknownLevel = errors.New("unknown message level")
)

// Target is the subsystem a dispatched message is routed to.
type Target string

const (
	TargetInterface Target = "interface"
	TargetServer    Target = "server"
)

// ParseTarget maps a case-insensitive name to a Target.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetInterface, TargetServer:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}

// Level is the priority of a dispatched message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelFatal   Level = "fatal"
)

var levelPriority = map[Level]int{
	LevelInfo:    0,
	LevelSuccess: 1,
	LevelWarn:    2,
	LevelFatal:   3,
}

// ParseLevel maps a case-insensitive name to a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelPriority[l]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
	return l, nil
}

// Priority orders levels from info (0) to fatal (3). Unknown levels return -1.
func (l Level) Priority() int {
	if p, ok := levelPriority[l]; ok {
		return p
	}
	return -1
}

// Message is a command or notice sent to a Target over the dispatcher.
type Message struct {
	ID     string    `json:"id"`
	Target Target    `json:"target"`
	Level  Level     `json:"level"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}
