package transport

import (
	"encoding/json"

	"github.com/Naser58164/praxis-medius/internal/domain"
)

// 命令类型
const (
	CmdJoin               = "join"
	CmdLeave              = "leave"
	CmdGetState           = "getState"
	CmdStart              = "start"
	CmdPause              = "pause"
	CmdResume             = "resume"
	CmdEnd                = "end"
	CmdUpdateVitals       = "updateVitals"
	CmdUpdateFinding      = "updateFinding"
	CmdRevealLab          = "revealLab"
	CmdPatientSpeak       = "patientSpeak"
	CmdAdvanceProgression = "advanceProgression"
	CmdPerformAction      = "performAction"
	CmdRequestLab         = "requestLab"
	CmdManikinFeedback    = "manikinFeedback"
)

const (
	FrameAck   = "ack"
	FrameEvent = "event"
)

// Command 入站命令帧 {id, type, payload}
type Command struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack 命令应答，ID 与命令相同
type Ack struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func okAck(id string, data any) Ack {
	return Ack{Type: FrameAck, ID: id, Success: true, Data: data}
}

func errAck(id string, err error) Ack {
	return Ack{Type: FrameAck, ID: id, Success: false, Error: err.Error(), Code: domain.Code(err)}
}

// EventFrame 出站事件帧
type EventFrame struct {
	Type      string           `json:"type"`
	Event     domain.EventName `json:"event"`
	SessionID string           `json:"sessionId"`
	Seq       uint64           `json:"seq"`
	Data      any              `json:"data,omitempty"`
}

func newEventFrame(ev domain.Event) EventFrame {
	return EventFrame{
		Type:      FrameEvent,
		Event:     ev.Name,
		SessionID: ev.SessionID,
		Seq:       ev.Seq,
		Data:      ev.Data,
	}
}

type joinPayload struct {
	Session   string `json:"session"`
	SessionID string `json:"sessionId"`
	JoinCode  string `json:"joinCode"`
}

func (p joinPayload) target() string {
	switch {
	case p.Session != "":
		return p.Session
	case p.SessionID != "":
		return p.SessionID
	default:
		return p.JoinCode
	}
}

type endPayload struct {
	Reason string `json:"reason"`
}

type findingPayload struct {
	Path  domain.FindingPath `json:"path"`
	Value any                `json:"value"`
}

type labPayload struct {
	LabID   string `json:"labId"`
	Results any    `json:"results"`
}

type speakPayload struct {
	Text string `json:"text"`
	Mood string `json:"mood"`
}

type actionPayload struct {
	ActionID          string           `json:"actionId"`
	Label             string           `json:"label"`
	Dimension         domain.Dimension `json:"dimension"`
	Parameters        map[string]any   `json:"parameters"`
	ClientElapsedTime *int             `json:"clientElapsedTime"`
	Success           *bool            `json:"success"`
}

type joinResult struct {
	Token    string `json:"token"`
	Snapshot any    `json:"snapshot"`
}
