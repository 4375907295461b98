// Package peer implements the full-duplex message channel between an
// AirDrop HTTP handler and a connected back-end peer: a tagged-union
// message envelope, a bidirectional websocket transport, and a
// pending-reply table for request/response correlation (spec §4.6/C6).
package peer

import (
	"encoding/json"
	"fmt"
)

// MessageType names one variant of the hub message union (spec §3).
type MessageType string

const (
	TypeConnect           MessageType = "connect"
	TypeAskRequest        MessageType = "askRequest"
	TypeAskResponse       MessageType = "askResponse"
	TypeFileUploadRequest MessageType = "fileUploadRequest"
	TypeFileUploadResponse MessageType = "fileUploadResponse"
)

// ConnectPayload is sent by the peer on first connection to introduce
// itself; it carries no reply_to and updates the peer's display name.
type ConnectPayload struct {
	DisplayName string `json:"display_name"`
}

// FileMetadata describes one entry in an AskRequest's file list.
type FileMetadata struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	IsDirectory         bool   `json:"is_directory"`
	ConvertMediaFormats bool   `json:"convert_media_formats"`
	BomPath             string `json:"bom_path,omitempty"`
}

// AskRequestPayload is the bridge->peer request built from an AirDrop
// sender's /Ask call (spec §3's "Ask request").
type AskRequestPayload struct {
	SenderComputerName string         `json:"sender_computer_name"`
	SenderModelName    string         `json:"sender_model_name"`
	SenderID           string         `json:"sender_id"`
	BundleID           string         `json:"bundle_id"`
	PreviewIcon        []byte         `json:"preview_icon,omitempty"`
	Files              []FileMetadata `json:"files"`
	SignedSenderRecord []byte         `json:"signed_sender_record,omitempty"`
}

// AskResponsePayload is the peer's answer to an askRequest.
type AskResponsePayload struct {
	Accepted bool `json:"accepted"`
}

// FileUploadRequestPayload notifies the peer that a file has been
// extracted and is available at URL.
type FileUploadRequestPayload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// FileUploadResponsePayload acknowledges a fileUploadRequest.
type FileUploadResponsePayload struct {
	OK bool `json:"ok"`
}

// Message is the tagged union every value flowing over a Channel is
// wrapped in: a single on-wire key naming the variant, an id unique per
// message, and an optional reply_to equal to the id of the request this
// message answers (spec §3/§9's "polymorphic messages" design note).
type Message struct {
	ID      string
	ReplyTo string
	Type    MessageType
	Payload any
}

// envelopeFields are the two keys every variant's body carries alongside
// its own fields, merged in at the same level rather than nested under a
// "payload" key.
type envelopeFields struct {
	ID      string `json:"id"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// MarshalJSON writes the message as a single-key object naming the
// variant, whose value is the payload's own fields plus id/reply_to
// merged in: {"<type>": {"id":.., "reply_to":.., ...fields}}.
func (m Message) MarshalJSON() ([]byte, error) {
	payloadBytes, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("peer: marshal payload for %s: %w", m.Type, err)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(payloadBytes, &body); err != nil {
		return nil, fmt.Errorf("peer: payload for %s did not marshal to an object: %w", m.Type, err)
	}
	if body == nil {
		body = map[string]json.RawMessage{}
	}

	idBytes, err := json.Marshal(envelopeFields{ID: m.ID, ReplyTo: m.ReplyTo})
	if err != nil {
		return nil, fmt.Errorf("peer: marshal envelope fields: %w", err)
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(idBytes, &envelope); err != nil {
		return nil, err
	}
	for k, v := range envelope {
		body[k] = v
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("peer: marshal merged %s body: %w", m.Type, err)
	}
	return json.Marshal(map[string]json.RawMessage{string(m.Type): bodyBytes})
}

// UnmarshalJSON selects the payload's concrete type from the envelope's
// single top-level key, the variant-dispatch half of the tagged-union
// codec (spec §3/§9's "single on-wire key naming its variant").
func (m *Message) UnmarshalJSON(data []byte) error {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return fmt.Errorf("peer: unmarshal envelope: %w", err)
	}
	if len(outer) != 1 {
		return fmt.Errorf("peer: envelope must have exactly one top-level key, got %d", len(outer))
	}

	var typ MessageType
	var body json.RawMessage
	for k, v := range outer {
		typ, body = MessageType(k), v
	}

	var envelope envelopeFields
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("peer: unmarshal envelope fields: %w", err)
	}
	m.ID = envelope.ID
	m.ReplyTo = envelope.ReplyTo
	m.Type = typ

	var dst any
	switch typ {
	case TypeConnect:
		dst = &ConnectPayload{}
	case TypeAskRequest:
		dst = &AskRequestPayload{}
	case TypeAskResponse:
		dst = &AskResponsePayload{}
	case TypeFileUploadRequest:
		dst = &FileUploadRequestPayload{}
	case TypeFileUploadResponse:
		dst = &FileUploadResponsePayload{}
	default:
		return fmt.Errorf("peer: unknown message type %q", typ)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("peer: unmarshal %s payload: %w", typ, err)
	}
	m.Payload = dst
	return nil
}
