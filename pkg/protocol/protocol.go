package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Request discriminators (client → server).
const (
	TypeSendMessage         = "SEND_MESSAGE"
	TypeSendGroupMessage    = "SEND_GROUP_MESSAGE"
	TypeReadDirectMessage   = "READ_DIRECT_MESSAGE"
	TypeReadGroupMessage    = "READ_GROUP_MESSAGE"
	TypeDeleteDirectMessage = "DELETE_DIRECT_MESSAGE"
	TypeDeleteGroupMessage  = "DELETE_GROUP_MESSAGE"
	TypeEditDirectMessage   = "EDIT_DIRECT_MESSAGE"
	TypeEditGroupMessage    = "EDIT_GROUP_MESSAGE"
)

// Notification discriminators (server → client).
const (
	TypeMessageNotification             = "MESSAGE_NOTIFICATION"
	TypeGroupMessageNotification        = "GROUP_MESSAGE_NOTIFICATION"
	TypeReadNotification                = "READ_NOTIFICATION"
	TypeDeleteDirectMessageNotification = "DELETE_DIRECT_MESSAGE_NOTIFICATION"
	TypeDeleteGroupMessageNotification  = "DELETE_GROUP_MESSAGE_NOTIFICATION"
	TypeUpdateDirectMessageNotification = "UPDATE_DIRECT_MESSAGE_NOTIFICATION"
	TypeUpdateGroupMessageNotification  = "UPDATE_GROUP_MESSAGE_NOTIFICATION"
	TypeErrorNotification               = "ERROR_NOTIFICATION"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrEmptyFrame  = errors.New("empty frame")
)

// Attachment is a file carried inside a send request. Content travels
// base64-encoded on the wire and is decoded before it reaches storage.
type Attachment struct {
	Name          string `json:"name"`
	ContentBase64 string `json:"contentBase64"`
}

// Content decodes the base64 payload.
func (a Attachment) Content() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.ContentBase64)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %q: %w", a.Name, err)
	}
	return data, nil
}

// NotificationAttachment is the attachment reference carried in notifications.
// Clients fetch the bytes separately.
type NotificationAttachment struct {
	ID       int64  `json:"id"`
	FileType string `json:"fileType"`
}

// Request is the closed set of client frames. Every variant is handled
// exhaustively by the broker dispatcher.
type Request interface {
	Discriminator() string
}

type SendMessage struct {
	ReceiverUID int64        `json:"receiverUid"`
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments"`
}

type SendGroupMessage struct {
	GroupID     int64        `json:"groupId"`
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments"`
}

type ReadDirectMessage struct {
	ReceiverUID int64 `json:"receiverUid"`
}

type ReadGroupMessage struct {
	GroupID int64 `json:"groupId"`
}

type DeleteDirectMessage struct {
	MessageID int64 `json:"messageId"`
}

type DeleteGroupMessage struct {
	MessageID int64 `json:"messageId"`
}

type EditDirectMessage struct {
	MessageID     int64  `json:"messageId"`
	EditedContent string `json:"editedContent"`
}

type EditGroupMessage struct {
	MessageID     int64  `json:"messageId"`
	EditedContent string `json:"editedContent"`
}

func (*SendMessage) Discriminator() string         { return TypeSendMessage }
func (*SendGroupMessage) Discriminator() string    { return TypeSendGroupMessage }
func (*ReadDirectMessage) Discriminator() string   { return TypeReadDirectMessage }
func (*ReadGroupMessage) Discriminator() string    { return TypeReadGroupMessage }
func (*DeleteDirectMessage) Discriminator() string { return TypeDeleteDirectMessage }
func (*DeleteGroupMessage) Discriminator() string  { return TypeDeleteGroupMessage }
func (*EditDirectMessage) Discriminator() string   { return TypeEditDirectMessage }
func (*EditGroupMessage) Discriminator() string    { return TypeEditGroupMessage }

// Notification is the closed set of server frames.
type Notification interface {
	Discriminator() string
}

type MessageNotification struct {
	ID           int64                    `json:"id"`
	SenderUID    int64                    `json:"senderUid"`
	ReceiverUID  int64                    `json:"receiverUid"`
	Content      string                   `json:"content"`
	IsUser       bool                     `json:"isUser"`
	SentAt       string                   `json:"sentAt"`
	ReceiverRead bool                     `json:"receiverRead"`
	Attachments  []NotificationAttachment `json:"attachments"`
}

type GroupMessageNotification struct {
	ID          int64                    `json:"id"`
	SenderID    int64                    `json:"senderId"`
	Username    string                   `json:"username"`
	GroupID     int64                    `json:"groupId"`
	Content     string                   `json:"content"`
	SentAt      string                   `json:"sentAt"`
	Attachments []NotificationAttachment `json:"attachments"`
}

type ReadNotification struct {
	SenderUID   int64 `json:"senderUid"`
	ReceiverUID int64 `json:"receiverUid"`
}

type DeleteDirectMessageNotification struct {
	ContactID int64 `json:"contactId"`
	MessageID int64 `json:"messageId"`
}

type DeleteGroupMessageNotification struct {
	GroupID   int64 `json:"groupId"`
	MessageID int64 `json:"messageId"`
}

type UpdateDirectMessageNotification struct {
	ContactID int64  `json:"contactId"`
	MessageID int64  `json:"messageId"`
	Content   string `json:"content"`
}

type UpdateGroupMessageNotification struct {
	GroupID   int64  `json:"groupId"`
	MessageID int64  `json:"messageId"`
	Content   string `json:"content"`
}

type ErrorNotification struct {
	Message string `json:"message"`
}

func (*MessageNotification) Discriminator() string      { return TypeMessageNotification }
func (*GroupMessageNotification) Discriminator() string { return TypeGroupMessageNotification }
func (*ReadNotification) Discriminator() string         { return TypeReadNotification }
func (*DeleteDirectMessageNotification) Discriminator() string {
	return TypeDeleteDirectMessageNotification
}
func (*DeleteGroupMessageNotification) Discriminator() string {
	return TypeDeleteGroupMessageNotification
}
func (*UpdateDirectMessageNotification) Discriminator() string {
	return TypeUpdateDirectMessageNotification
}
func (*UpdateGroupMessageNotification) Discriminator() string {
	return TypeUpdateGroupMessageNotification
}
func (*ErrorNotification) Discriminator() string { return TypeErrorNotification }
