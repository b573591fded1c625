// Package protocol defines the wire messages exchanged between the worker
// and its peers (phones, controllers, SSE clients) and the matching
// Command/CommandResponse data model. Frames are plain UTF-8 JSON objects;
// which kind of message a frame is gets discriminated structurally (by
// which fields are present), not by a tagged union, matching §4.1.
package protocol

import jsoniter "github.com/json-iterator/go"

// RawMessage is an opaque, already-encoded JSON value — used for the
// free-form params/result payloads the worker forwards without inspecting.
type RawMessage = jsoniter.RawMessage

// Role identifies which of the four peer kinds a connection or request is.
type Role string

const (
	RolePhone      Role = "phone"
	RoleController Role = "controller"
	RoleSSEClient  Role = "sse_client"
	RoleNotifier   Role = "notifier"
)

// ClientVersion is the optional version stanza a phone or controller may
// include on its auth frame, cached per device for cross-version checks.
type ClientVersion struct {
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Component string `json:"component"`
}

// Command is a request routed from a controller to a device. IDs are
// assigned by the StateBackend at enqueue time — controllers never choose
// their own id.
type Command struct {
	ID     int64      `json:"id"`
	Cmd    string     `json:"cmd"`
	Params RawMessage `json:"params,omitempty"`
}

// CommandResponse is what a device reports back for a prior Command.
// Receiving one implicitly acknowledges ID, the same as a bare {ack:ID}.
type CommandResponse struct {
	ID     int64      `json:"id"`
	Status string     `json:"status"`
	Result RawMessage `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// InboundFrame is the superset of every field any peer's frame might
// carry. A session decodes into this once and then discriminates by
// field presence, following the non-tagged-union shape of §4.1.
type InboundFrame struct {
	Type string `json:"type,omitempty"`

	// auth frame
	UserID         string         `json:"user_id,omitempty"`
	Key            string         `json:"key,omitempty"`
	Role           Role           `json:"role,omitempty"`
	DeviceID       string         `json:"device_id,omitempty"`
	TargetDeviceID string         `json:"target_device_id,omitempty"`
	LastAck        *int64         `json:"last_ack,omitempty"`
	Version        *ClientVersion `json:"version,omitempty"`

	// bare ack
	Ack *int64 `json:"ack,omitempty"`

	// command response (also doubles as an implicit ack of ID)
	ID     *int64     `json:"id,omitempty"`
	Status string     `json:"status,omitempty"`
	Result RawMessage `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`

	// controller command request
	Cmd    string     `json:"cmd,omitempty"`
	Params RawMessage `json:"params,omitempty"`
}

// IsAuth reports whether the frame is an {type:"auth", ...} frame.
func (f *InboundFrame) IsAuth() bool { return f.Type == "auth" }

// IsPong reports whether the frame is a bare heartbeat reply.
func (f *InboundFrame) IsPong() bool { return f.Type == "pong" }

// IsBareAck reports whether the frame is a standalone {ack: N} frame (not
// a CommandResponse, which also carries an id but additionally a status).
func (f *InboundFrame) IsBareAck() bool { return f.Ack != nil && f.ID == nil }

// IsCommandResponse reports whether the frame looks like
// {id, status, result?|error?} coming from a phone.
func (f *InboundFrame) IsCommandResponse() bool { return f.ID != nil && f.Status != "" }

// IsCommandRequest reports whether the frame looks like a controller's
// {cmd, params?} request.
func (f *InboundFrame) IsCommandRequest() bool { return f.Cmd != "" }

// StripHyphens drops "-" from a device_id so callers may pass either UUID
// form or bare hex, per §3.
func StripHyphens(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		if id[i] != '-' {
			out = append(out, id[i])
		}
	}
	return string(out)
}

// --- outbound frames ---

type AuthOK struct {
	Type           string `json:"type"`
	ResumeFrom     int64  `json:"resume_from"`
	PhoneConnected *bool  `json:"phone_connected,omitempty"`
}

func NewAuthOK(resumeFrom int64, phoneConnected *bool) AuthOK {
	return AuthOK{Type: "auth_ok", ResumeFrom: resumeFrom, PhoneConnected: phoneConnected}
}

type AuthFail struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewAuthFail(msg string) AuthFail { return AuthFail{Type: "auth_fail", Error: msg} }

type SimpleError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewSimpleError(msg string) SimpleError { return SimpleError{Type: "error", Error: msg} }

type VersionError struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	UpdateURL string `json:"update_url"`
}

type Ping struct {
	Type string `json:"type"`
}

func NewPing() Ping { return Ping{Type: "ping"} }

type CmdAccepted struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

func NewCmdAccepted(id int64) CmdAccepted { return CmdAccepted{Type: "cmd_accepted", ID: id} }

type PhoneStatus struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

func NewPhoneStatus(connected bool) PhoneStatus {
	return PhoneStatus{Type: "phone_status", Connected: connected}
}
