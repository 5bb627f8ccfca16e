package protocol

import (
	"encoding/json"
	"fmt"
)

// envelope is used to peek at the discriminator before decoding the variant.
type envelope struct {
	Type string `json:"type"`
}

// DecodeRequest decodes one inbound frame. An unknown discriminator or
// malformed fields is a per-frame failure; the caller drops the frame and
// keeps the connection open.
func DecodeRequest(data []byte) (Request, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid frame envelope: %w", err)
	}

	var req Request
	switch env.Type {
	case TypeSendMessage:
		req = &SendMessage{}
	case TypeSendGroupMessage:
		req = &SendGroupMessage{}
	case TypeReadDirectMessage:
		req = &ReadDirectMessage{}
	case TypeReadGroupMessage:
		req = &ReadGroupMessage{}
	case TypeDeleteDirectMessage:
		req = &DeleteDirectMessage{}
	case TypeDeleteGroupMessage:
		req = &DeleteGroupMessage{}
	case TypeEditDirectMessage:
		req = &EditDirectMessage{}
	case TypeEditGroupMessage:
		req = &EditGroupMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", env.Type, err)
	}
	return req, nil
}

// DecodeNotification decodes one outbound frame. Used by clients and tests;
// the server only encodes notifications.
func DecodeNotification(data []byte) (Notification, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid frame envelope: %w", err)
	}

	var n Notification
	switch env.Type {
	case TypeMessageNotification:
		n = &MessageNotification{}
	case TypeGroupMessageNotification:
		n = &GroupMessageNotification{}
	case TypeReadNotification:
		n = &ReadNotification{}
	case TypeDeleteDirectMessageNotification:
		n = &DeleteDirectMessageNotification{}
	case TypeDeleteGroupMessageNotification:
		n = &DeleteGroupMessageNotification{}
	case TypeUpdateDirectMessageNotification:
		n = &UpdateDirectMessageNotification{}
	case TypeUpdateGroupMessageNotification:
		n = &UpdateGroupMessageNotification{}
	case TypeErrorNotification:
		n = &ErrorNotification{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", env.Type, err)
	}
	return n, nil
}

// EncodeRequest serializes a request with its type discriminator spliced in.
func EncodeRequest(req Request) ([]byte, error) {
	return encodeTagged(req.Discriminator(), req)
}

// EncodeNotification serializes a notification with its type discriminator
// spliced in.
func EncodeNotification(n Notification) ([]byte, error) {
	return encodeTagged(n.Discriminator(), n)
}

// encodeTagged marshals v and prepends the "type" field to the resulting
// object. v must marshal to a JSON object.
func encodeTagged(tag string, v any) ([]byte, error) {
	fields, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(fields) < 2 || fields[0] != '{' {
		return nil, fmt.Errorf("cannot tag non-object payload for %s", tag)
	}

	out := make([]byte, 0, len(fields)+len(tag)+11)
	out = append(out, `{"type":"`...)
	out = append(out, tag...)
	out = append(out, '"')
	if len(fields) > 2 {
		out = append(out, ',')
	}
	out = append(out, fields[1:]...)
	return out, nil
}
