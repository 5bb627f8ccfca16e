package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Request
	}{
		{
			name: "send message",
			data: `{"type":"SEND_MESSAGE","receiverUid":42,"message":"hello"}`,
			want: &SendMessage{ReceiverUID: 42, Message: "hello"},
		},
		{
			name: "send message with attachments",
			data: `{"type":"SEND_MESSAGE","receiverUid":42,"message":"pic","attachments":[{"name":"cat.png","contentBase64":"iVBORw=="}]}`,
			want: &SendMessage{
				ReceiverUID: 42,
				Message:     "pic",
				Attachments: []Attachment{{Name: "cat.png", ContentBase64: "iVBORw=="}},
			},
		},
		{
			name: "send group message",
			data: `{"type":"SEND_GROUP_MESSAGE","groupId":7,"message":"hi all"}`,
			want: &SendGroupMessage{GroupID: 7, Message: "hi all"},
		},
		{
			name: "read direct message",
			data: `{"type":"READ_DIRECT_MESSAGE","receiverUid":42}`,
			want: &ReadDirectMessage{ReceiverUID: 42},
		},
		{
			name: "read group message",
			data: `{"type":"READ_GROUP_MESSAGE","groupId":7}`,
			want: &ReadGroupMessage{GroupID: 7},
		},
		{
			name: "delete direct message",
			data: `{"type":"DELETE_DIRECT_MESSAGE","messageId":99}`,
			want: &DeleteDirectMessage{MessageID: 99},
		},
		{
			name: "delete group message",
			data: `{"type":"DELETE_GROUP_MESSAGE","messageId":99}`,
			want: &DeleteGroupMessage{MessageID: 99},
		},
		{
			name: "edit direct message",
			data: `{"type":"EDIT_DIRECT_MESSAGE","messageId":99,"editedContent":"fixed"}`,
			want: &EditDirectMessage{MessageID: 99, EditedContent: "fixed"},
		},
		{
			name: "edit group message",
			data: `{"type":"EDIT_GROUP_MESSAGE","messageId":99,"editedContent":"fixed"}`,
			want: &EditGroupMessage{MessageID: 99, EditedContent: "fixed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "empty frame", data: "", wantErr: ErrEmptyFrame},
		{name: "unknown discriminator", data: `{"type":"BOGUS"}`, wantErr: ErrUnknownType},
		{name: "missing discriminator", data: `{"receiverUid":1}`, wantErr: ErrUnknownType},
		{name: "not json", data: `not json at all`},
		{name: "wrong field type", data: `{"type":"SEND_MESSAGE","receiverUid":"forty-two"}`},
		{name: "json array", data: `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.data))
			require.Error(t, err)
			assert.Nil(t, got)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEncodeNotification(t *testing.T) {
	n := &MessageNotification{
		ID:          1,
		SenderUID:   2,
		ReceiverUID: 3,
		Content:     "hello",
		IsUser:      true,
		SentAt:      "2026-01-02T15:04:05Z",
		Attachments: []NotificationAttachment{{ID: 10, FileType: "PNG"}},
	}

	data, err := EncodeNotification(n)
	require.NoError(t, err)

	// The discriminator must be present and the payload must stay valid JSON.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "MESSAGE_NOTIFICATION", decoded["type"])
	assert.Equal(t, "hello", decoded["content"])
	assert.Equal(t, true, decoded["isUser"])
}

func TestEncodeDecodeNotificationRoundTrip(t *testing.T) {
	notifications := []Notification{
		&MessageNotification{ID: 1, SenderUID: 2, ReceiverUID: 3, Content: "hi", SentAt: "2026-01-02T15:04:05Z"},
		&GroupMessageNotification{ID: 4, SenderID: 2, Username: "alice", GroupID: 7, Content: "hi all", SentAt: "2026-01-02T15:04:05Z"},
		&ReadNotification{SenderUID: 2, ReceiverUID: 3},
		&DeleteDirectMessageNotification{ContactID: 2, MessageID: 99},
		&DeleteGroupMessageNotification{GroupID: 7, MessageID: 99},
		&UpdateDirectMessageNotification{ContactID: 2, MessageID: 99, Content: "fixed"},
		&UpdateGroupMessageNotification{GroupID: 7, MessageID: 99, Content: "fixed"},
		&ErrorNotification{Message: "failed to send message"},
	}

	for _, n := range notifications {
		t.Run(n.Discriminator(), func(t *testing.T) {
			data, err := EncodeNotification(n)
			require.NoError(t, err)

			got, err := DecodeNotification(data)
			require.NoError(t, err)
			assert.Equal(t, n, got)
		})
	}
}

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	requests := []Request{
		&SendMessage{ReceiverUID: 42, Message: "hello", Attachments: []Attachment{{Name: "a.png", ContentBase64: "aGk="}}},
		&SendGroupMessage{GroupID: 7, Message: "hi all"},
		&ReadDirectMessage{ReceiverUID: 42},
		&ReadGroupMessage{GroupID: 7},
		&DeleteDirectMessage{MessageID: 99},
		&DeleteGroupMessage{MessageID: 99},
		&EditDirectMessage{MessageID: 99, EditedContent: "fixed"},
		&EditGroupMessage{MessageID: 99, EditedContent: "fixed"},
	}

	for _, req := range requests {
		t.Run(req.Discriminator(), func(t *testing.T) {
			data, err := EncodeRequest(req)
			require.NoError(t, err)

			got, err := DecodeRequest(data)
			require.NoError(t, err)
			assert.Equal(t, req, got)
		})
	}
}

func TestDecodeNotificationErrors(t *testing.T) {
	_, err := DecodeNotification(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = DecodeNotification([]byte(`{"type":"SEND_MESSAGE"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestAttachmentContent(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4E, 0x47}
	a := Attachment{Name: "img.png", ContentBase64: base64.StdEncoding.EncodeToString(payload)}

	got, err := a.Content()
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	bad := Attachment{Name: "img.png", ContentBase64: "***"}
	_, err = bad.Content()
	assert.Error(t, err)
}
