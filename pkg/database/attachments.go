package database

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
)

// Attachment file types
const (
	FileTypePNG  = "PNG"
	FileTypeJPEG = "JPEG"
)

// NewAttachment is the input for storing an attachment
type NewAttachment struct {
	Name    string
	Content []byte
}

// AttachmentRef identifies a stored attachment without its bytes
type AttachmentRef struct {
	ID       int64
	Name     string
	FileType string
}

// Attachment is a stored attachment including its bytes
type Attachment struct {
	ID       int64
	Name     string
	Content  []byte
	FileType string
}

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// DetectFileType sniffs the attachment type from its leading bytes.
// Only PNG and JPEG are accepted.
func DetectFileType(content []byte) (string, error) {
	switch {
	case bytes.HasPrefix(content, pngMagic):
		return FileTypePNG, nil
	case bytes.HasPrefix(content, jpegMagic):
		return FileTypeJPEG, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// ContentType returns the MIME type for a stored file type
func ContentType(fileType string) string {
	switch fileType {
	case FileTypePNG:
		return "image/png"
	case FileTypeJPEG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// Attachment fetches a stored attachment with its bytes
func (db *DB) Attachment(id int64) (*Attachment, error) {
	var a Attachment
	err := db.conn.QueryRow(
		"SELECT id, name, content, file_type FROM attachments WHERE id = ?",
		id,
	).Scan(&a.ID, &a.Name, &a.Content, &a.FileType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// insertAttachment stores one attachment inside an open transaction and links
// it to a message through linkTable (message_attachments or
// group_message_attachments).
func (db *DB) insertAttachment(tx *sql.Tx, in NewAttachment, linkTable string, messageID int64) (*AttachmentRef, error) {
	fileType, err := DetectFileType(in.Content)
	if err != nil {
		return nil, fmt.Errorf("attachment %q: %w", in.Name, err)
	}

	id := db.nextID()
	_, err = tx.Exec(
		"INSERT INTO attachments (id, name, content, file_type) VALUES (?, ?, ?, ?)",
		id, in.Name, in.Content, fileType,
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		"INSERT INTO "+linkTable+" (attachment_id, message_id) VALUES (?, ?)",
		id, messageID,
	)
	if err != nil {
		return nil, err
	}

	return &AttachmentRef{ID: id, Name: in.Name, FileType: fileType}, nil
}

// attachmentRefs loads the attachment references linked to a message
func (db *DB) attachmentRefs(linkTable string, messageID int64) ([]AttachmentRef, error) {
	rows, err := db.conn.Query(`
		SELECT a.id, a.name, a.file_type
		FROM `+linkTable+` l
		JOIN attachments a ON a.id = l.attachment_id
		WHERE l.message_id = ?
		ORDER BY a.id`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []AttachmentRef
	for rows.Next() {
		var r AttachmentRef
		if err := rows.Scan(&r.ID, &r.Name, &r.FileType); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}
