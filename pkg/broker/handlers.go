package broker

import (
	"errors"

	"github.com/parley-chat/parley/pkg/database"
	"github.com/parley-chat/parley/pkg/protocol"
)

// handleSendMessage persists a direct message and fans the notification out
// to every session of both sender and receiver. The isUser flag marks the
// sender's own copies. Persistence failure is reported only to the
// originating session.
func (b *Broker) handleSendMessage(origin SessionID, senderID int64, req *protocol.SendMessage) {
	attachments := decodeAttachments(req.Attachments)

	msg, err := b.store.CreateDirectMessage(senderID, req.ReceiverUID, req.Message, attachments)
	if err != nil {
		errorLog.Printf("Failed to create direct message from %d to %d: %v", senderID, req.ReceiverUID, err)
		b.deliverToSession(origin, &protocol.ErrorNotification{Message: "failed to send message"})
		return
	}

	b.notifyDirectMessage(msg.SenderID, msg)
	b.notifyDirectMessage(msg.ReceiverID, msg)
}

// notifyDirectMessage delivers a message notification to every session of
// one user, tagged with that user's view of the message.
func (b *Broker) notifyDirectMessage(userID int64, msg *database.DirectMessage) {
	b.deliverToUser(userID, &protocol.MessageNotification{
		ID:           msg.ID,
		SenderUID:    msg.SenderID,
		ReceiverUID:  msg.ReceiverID,
		Content:      msg.Content,
		IsUser:       userID == msg.SenderID,
		SentAt:       formatSentAt(msg.SentAt),
		ReceiverRead: msg.Read,
		Attachments:  notificationAttachments(msg.Attachments),
	})
}

// handleSendGroupMessage persists a group message and fans it out to every
// member's sessions. A sender who is not a member is silently dropped;
// membership tampering is not a user-facing error.
func (b *Broker) handleSendGroupMessage(senderID int64, req *protocol.SendGroupMessage) {
	members, err := b.store.GroupMembers(req.GroupID)
	if err != nil {
		errorLog.Printf("Failed to fetch members of group %d: %v", req.GroupID, err)
		return
	}
	if !containsUser(members, senderID) {
		errorLog.Printf("User %d is not a member of group %d, dropping message", senderID, req.GroupID)
		return
	}

	attachments := decodeAttachments(req.Attachments)

	msg, err := b.store.CreateGroupMessage(req.GroupID, senderID, req.Message, attachments)
	if err != nil {
		errorLog.Printf("Failed to create group message in %d: %v", req.GroupID, err)
		return
	}

	note := &protocol.GroupMessageNotification{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		Username:    msg.Username,
		GroupID:     msg.GroupID,
		Content:     msg.Content,
		SentAt:      formatSentAt(msg.SentAt),
		Attachments: notificationAttachments(msg.Attachments),
	}
	for _, memberID := range members {
		b.deliverToUser(memberID, note)
	}
}

// handleReadDirectMessage marks a conversation read and notifies the
// original sender's sessions that their messages were seen. The reader's own
// sessions get nothing; the reader already knows.
func (b *Broker) handleReadDirectMessage(readerID int64, req *protocol.ReadDirectMessage) {
	if err := b.store.MarkDirectRead(readerID, req.ReceiverUID); err != nil {
		errorLog.Printf("Failed to mark messages from %d to %d read: %v", req.ReceiverUID, readerID, err)
		return
	}
	b.deliverToUser(req.ReceiverUID, &protocol.ReadNotification{
		SenderUID:   req.ReceiverUID,
		ReceiverUID: readerID,
	})
}

// handleReadGroupMessage persists group read state. No fan-out; other
// members do not receive receipts.
func (b *Broker) handleReadGroupMessage(userID int64, req *protocol.ReadGroupMessage) {
	if err := b.store.MarkGroupRead(userID, req.GroupID); err != nil {
		errorLog.Printf("Failed to mark group %d read for user %d: %v", req.GroupID, userID, err)
	}
}

// handleDeleteDirectMessage soft-deletes a message the actor owns and
// notifies both participants. A non-owner's request is a silent no-op.
func (b *Broker) handleDeleteDirectMessage(userID int64, req *protocol.DeleteDirectMessage) {
	msg, err := b.store.DirectMessage(req.MessageID)
	if err != nil {
		if !errors.Is(err, database.ErrMessageNotFound) {
			errorLog.Printf("Failed to fetch message %d: %v", req.MessageID, err)
		}
		return
	}
	if msg.SenderID != userID {
		return
	}

	ok, err := b.store.SoftDeleteDirectMessage(req.MessageID)
	if err != nil {
		errorLog.Printf("Failed to delete message %d: %v", req.MessageID, err)
		return
	}
	if !ok {
		return
	}

	b.deliverToUser(msg.SenderID, &protocol.DeleteDirectMessageNotification{
		ContactID: msg.ReceiverID,
		MessageID: req.MessageID,
	})
	b.deliverToUser(msg.ReceiverID, &protocol.DeleteDirectMessageNotification{
		ContactID: msg.SenderID,
		MessageID: req.MessageID,
	})
}

// handleDeleteGroupMessage soft-deletes a group message the actor owns and
// notifies every member.
func (b *Broker) handleDeleteGroupMessage(userID int64, req *protocol.DeleteGroupMessage) {
	msg, err := b.store.GroupMessage(req.MessageID)
	if err != nil {
		if !errors.Is(err, database.ErrMessageNotFound) {
			errorLog.Printf("Failed to fetch group message %d: %v", req.MessageID, err)
		}
		return
	}
	if msg.SenderID != userID {
		return
	}

	ok, err := b.store.SoftDeleteGroupMessage(req.MessageID)
	if err != nil {
		errorLog.Printf("Failed to delete group message %d: %v", req.MessageID, err)
		return
	}
	if !ok {
		return
	}

	members, err := b.store.GroupMembers(msg.GroupID)
	if err != nil {
		errorLog.Printf("Failed to fetch members of group %d: %v", msg.GroupID, err)
		return
	}
	note := &protocol.DeleteGroupMessageNotification{
		GroupID:   msg.GroupID,
		MessageID: msg.ID,
	}
	for _, memberID := range members {
		b.deliverToUser(memberID, note)
	}
}

// handleEditDirectMessage replaces an owned message's content and notifies
// both participants with the new content.
func (b *Broker) handleEditDirectMessage(userID int64, req *protocol.EditDirectMessage) {
	msg, err := b.store.DirectMessage(req.MessageID)
	if err != nil {
		if !errors.Is(err, database.ErrMessageNotFound) {
			errorLog.Printf("Failed to fetch message %d: %v", req.MessageID, err)
		}
		return
	}
	if msg.SenderID != userID {
		return
	}

	updated, err := b.store.EditDirectMessage(req.MessageID, req.EditedContent)
	if err != nil {
		errorLog.Printf("Failed to edit message %d: %v", req.MessageID, err)
		return
	}

	b.deliverToUser(updated.SenderID, &protocol.UpdateDirectMessageNotification{
		ContactID: updated.ReceiverID,
		MessageID: updated.ID,
		Content:   updated.Content,
	})
	b.deliverToUser(updated.ReceiverID, &protocol.UpdateDirectMessageNotification{
		ContactID: updated.SenderID,
		MessageID: updated.ID,
		Content:   updated.Content,
	})
}

// handleEditGroupMessage replaces an owned group message's content and
// notifies every member.
func (b *Broker) handleEditGroupMessage(userID int64, req *protocol.EditGroupMessage) {
	msg, err := b.store.GroupMessage(req.MessageID)
	if err != nil {
		if !errors.Is(err, database.ErrMessageNotFound) {
			errorLog.Printf("Failed to fetch group message %d: %v", req.MessageID, err)
		}
		return
	}
	if msg.SenderID != userID {
		return
	}

	updated, err := b.store.EditGroupMessage(req.MessageID, req.EditedContent)
	if err != nil {
		errorLog.Printf("Failed to edit group message %d: %v", req.MessageID, err)
		return
	}

	members, err := b.store.GroupMembers(updated.GroupID)
	if err != nil {
		errorLog.Printf("Failed to fetch members of group %d: %v", updated.GroupID, err)
		return
	}
	note := &protocol.UpdateGroupMessageNotification{
		GroupID:   updated.GroupID,
		MessageID: updated.ID,
		Content:   updated.Content,
	}
	for _, memberID := range members {
		b.deliverToUser(memberID, note)
	}
}

func notificationAttachments(refs []database.AttachmentRef) []protocol.NotificationAttachment {
	out := make([]protocol.NotificationAttachment, 0, len(refs))
	for _, r := range refs {
		out = append(out, protocol.NotificationAttachment{ID: r.ID, FileType: r.FileType})
	}
	return out
}

func containsUser(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
