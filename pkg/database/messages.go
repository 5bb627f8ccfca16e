package database

import (
	"database/sql"
	"errors"
	"time"
)

// DirectMessage is a one-to-one message
type DirectMessage struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	Content     string
	SentAt      time.Time
	Read        bool
	Edited      bool
	Deleted     bool
	Attachments []AttachmentRef
}

// Conversation is a direct-conversation summary for the recent list
type Conversation struct {
	ContactID   int64
	Username    string
	LastMessage string
	SentAt      time.Time
	UnreadCount int64
	Deleted     bool
}

// CreateDirectMessage inserts a message and its attachments in one
// transaction. Attachment linking is all-or-nothing with the message insert.
func (db *DB) CreateDirectMessage(senderID, receiverID int64, content string, attachments []NewAttachment) (*DirectMessage, error) {
	id := db.nextID()
	now := nowMillis()

	tx, err := db.writeConn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO direct_messages (id, sender_id, receiver_id, content, sent_at) VALUES (?, ?, ?, ?, ?)",
		id, senderID, receiverID, content, now,
	)
	if err != nil {
		return nil, err
	}

	refs := make([]AttachmentRef, 0, len(attachments))
	for _, in := range attachments {
		ref, err := db.insertAttachment(tx, in, "message_attachments", id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &DirectMessage{
		ID:          id,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     content,
		SentAt:      time.UnixMilli(now),
		Attachments: refs,
	}, nil
}

// DirectMessage fetches a message by ID, including attachment references
func (db *DB) DirectMessage(id int64) (*DirectMessage, error) {
	row := db.conn.QueryRow(
		"SELECT id, sender_id, receiver_id, content, sent_at, read, edited, deleted FROM direct_messages WHERE id = ?",
		id,
	)
	msg, err := scanDirectMessage(row)
	if err != nil {
		return nil, err
	}
	msg.Attachments, err = db.attachmentRefs("message_attachments", id)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkDirectRead marks every message from senderID to readerID as read
func (db *DB) MarkDirectRead(readerID, senderID int64) error {
	_, err := db.writeConn.Exec(
		"UPDATE direct_messages SET read = 1 WHERE receiver_id = ? AND sender_id = ?",
		readerID, senderID,
	)
	return err
}

// SoftDeleteDirectMessage flags a message as deleted. Content is blanked at
// read time, not destroyed here.
func (db *DB) SoftDeleteDirectMessage(id int64) (bool, error) {
	res, err := db.writeConn.Exec(
		"UPDATE direct_messages SET deleted = 1 WHERE id = ? AND deleted = 0",
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// EditDirectMessage replaces the message content and returns the updated row
func (db *DB) EditDirectMessage(id int64, content string) (*DirectMessage, error) {
	res, err := db.writeConn.Exec(
		"UPDATE direct_messages SET content = ?, edited = 1 WHERE id = ? AND deleted = 0",
		content, id,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, ErrMessageNotFound
	}
	return db.DirectMessage(id)
}

// ConversationMessages lists all messages between two users in send order
func (db *DB) ConversationMessages(userID, contactID int64) ([]*DirectMessage, error) {
	rows, err := db.conn.Query(`
		SELECT id, sender_id, receiver_id, content, sent_at, read, edited, deleted
		FROM direct_messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY sent_at, id`,
		userID, contactID, contactID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*DirectMessage
	for rows.Next() {
		msg, err := scanDirectMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, msg := range messages {
		msg.Attachments, err = db.attachmentRefs("message_attachments", msg.ID)
		if err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// RecentConversations lists the newest message per contact with unread counts
func (db *DB) RecentConversations(userID int64) ([]*Conversation, error) {
	rows, err := db.conn.Query(`
		SELECT
			CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END AS contact_id,
			u.username,
			m.content,
			m.sent_at,
			m.deleted,
			(SELECT COUNT(*) FROM direct_messages dm
			 WHERE dm.receiver_id = ?
			   AND dm.sender_id = CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END
			   AND dm.read = 0) AS unread_count
		FROM direct_messages m
		JOIN users u ON u.id = CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END
		WHERE (m.sender_id = ? OR m.receiver_id = ?)
		  AND m.id = (
			SELECT MAX(id) FROM direct_messages
			WHERE (sender_id = m.sender_id AND receiver_id = m.receiver_id)
			   OR (sender_id = m.receiver_id AND receiver_id = m.sender_id)
		  )
		ORDER BY m.sent_at DESC`,
		userID, userID, userID, userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var c Conversation
		var sentAt int64
		if err := rows.Scan(&c.ContactID, &c.Username, &c.LastMessage, &sentAt, &c.Deleted, &c.UnreadCount); err != nil {
			return nil, err
		}
		c.SentAt = time.UnixMilli(sentAt)
		if c.Deleted {
			c.LastMessage = ""
		}
		conversations = append(conversations, &c)
	}
	return conversations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDirectMessage(row rowScanner) (*DirectMessage, error) {
	var msg DirectMessage
	var sentAt int64
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &sentAt, &msg.Read, &msg.Edited, &msg.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	msg.SentAt = time.UnixMilli(sentAt)
	if msg.Deleted {
		msg.Content = ""
	}
	return &msg, nil
}
