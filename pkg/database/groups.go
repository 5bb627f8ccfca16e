package database

import (
	"database/sql"
	"errors"
	"time"
)

// Group is a named multi-user conversation
type Group struct {
	ID   int64
	Name string
}

// GroupMessage is a message posted to a group
type GroupMessage struct {
	ID          int64
	GroupID     int64
	SenderID    int64
	Username    string
	Content     string
	SentAt      time.Time
	Edited      bool
	Deleted     bool
	Attachments []AttachmentRef
}

// GroupConversation is a group summary for the recent list
type GroupConversation struct {
	GroupID     int64
	Name        string
	UnreadCount int64
}

// CreateGroup creates a group with the creator and the given members
func (db *DB) CreateGroup(name string, creatorID int64, memberIDs []int64) (*Group, error) {
	id := db.nextID()
	now := nowMillis()

	tx, err := db.writeConn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO groups (id, name, created_at) VALUES (?, ?, ?)", id, name, now)
	if err != nil {
		return nil, err
	}

	members := append([]int64{creatorID}, memberIDs...)
	for _, uid := range members {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO group_members (group_id, user_id) VALUES (?, ?)",
			id, uid,
		)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Group{ID: id, Name: name}, nil
}

// Groups lists the groups a user belongs to, with unread counts
func (db *DB) Groups(userID int64) ([]*GroupConversation, error) {
	rows, err := db.conn.Query(`
		SELECT g.id, g.name,
			(SELECT COUNT(*) FROM group_messages gm
			 WHERE gm.group_id = g.id
			   AND gm.sender_id != ?
			   AND NOT EXISTS (
				SELECT 1 FROM group_message_reads r
				WHERE r.message_id = gm.id AND r.user_id = ?
			   )) AS unread_count
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.name`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*GroupConversation
	for rows.Next() {
		var g GroupConversation
		if err := rows.Scan(&g.GroupID, &g.Name, &g.UnreadCount); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

// GroupMembers returns the user IDs of every member of a group
func (db *DB) GroupMembers(groupID int64) ([]int64, error) {
	rows, err := db.conn.Query(
		"SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id",
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// CreateGroupMessage inserts a group message and its attachments in one
// transaction, returning the row hydrated with the sender's username
func (db *DB) CreateGroupMessage(groupID, senderID int64, content string, attachments []NewAttachment) (*GroupMessage, error) {
	sender, err := db.UserByID(senderID)
	if err != nil {
		return nil, err
	}

	id := db.nextID()
	now := nowMillis()

	tx, err := db.writeConn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO group_messages (id, group_id, sender_id, content, sent_at) VALUES (?, ?, ?, ?, ?)",
		id, groupID, senderID, content, now,
	)
	if err != nil {
		return nil, err
	}

	refs := make([]AttachmentRef, 0, len(attachments))
	for _, in := range attachments {
		ref, err := db.insertAttachment(tx, in, "group_message_attachments", id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &GroupMessage{
		ID:          id,
		GroupID:     groupID,
		SenderID:    senderID,
		Username:    sender.Username,
		Content:     content,
		SentAt:      time.UnixMilli(now),
		Attachments: refs,
	}, nil
}

// GroupMessage fetches a group message by ID, including attachment references
func (db *DB) GroupMessage(id int64) (*GroupMessage, error) {
	row := db.conn.QueryRow(`
		SELECT gm.id, gm.group_id, gm.sender_id, u.username, gm.content, gm.sent_at, gm.edited, gm.deleted
		FROM group_messages gm
		JOIN users u ON u.id = gm.sender_id
		WHERE gm.id = ?`,
		id,
	)
	msg, err := scanGroupMessage(row)
	if err != nil {
		return nil, err
	}
	msg.Attachments, err = db.attachmentRefs("group_message_attachments", id)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GroupMessages lists a group's messages in send order
func (db *DB) GroupMessages(groupID int64) ([]*GroupMessage, error) {
	rows, err := db.conn.Query(`
		SELECT gm.id, gm.group_id, gm.sender_id, u.username, gm.content, gm.sent_at, gm.edited, gm.deleted
		FROM group_messages gm
		JOIN users u ON u.id = gm.sender_id
		WHERE gm.group_id = ?
		ORDER BY gm.sent_at, gm.id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*GroupMessage
	for rows.Next() {
		msg, err := scanGroupMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, msg := range messages {
		msg.Attachments, err = db.attachmentRefs("group_message_attachments", msg.ID)
		if err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// IsGroupMember reports whether the user belongs to the group
func (db *DB) IsGroupMember(groupID, userID int64) (bool, error) {
	var one int
	err := db.conn.QueryRow(
		"SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkGroupRead marks every message in the group as read by the user
func (db *DB) MarkGroupRead(userID, groupID int64) error {
	_, err := db.writeConn.Exec(`
		INSERT OR IGNORE INTO group_message_reads (message_id, user_id, read_at)
		SELECT id, ?, ? FROM group_messages WHERE group_id = ? AND sender_id != ?`,
		userID, nowMillis(), groupID, userID,
	)
	return err
}

// SoftDeleteGroupMessage flags a group message as deleted
func (db *DB) SoftDeleteGroupMessage(id int64) (bool, error) {
	res, err := db.writeConn.Exec(
		"UPDATE group_messages SET deleted = 1 WHERE id = ? AND deleted = 0",
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// EditGroupMessage replaces the message content and returns the updated row
func (db *DB) EditGroupMessage(id int64, content string) (*GroupMessage, error) {
	res, err := db.writeConn.Exec(
		"UPDATE group_messages SET content = ?, edited = 1 WHERE id = ? AND deleted = 0",
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
	return db.GroupMessage(id)
}

func scanGroupMessage(row rowScanner) (*GroupMessage, error) {
	var msg GroupMessage
	var sentAt int64
	err := row.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Username, &msg.Content, &sentAt, &msg.Edited, &msg.Deleted)
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
