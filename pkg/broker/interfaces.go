package broker

import "github.com/parley-chat/parley/pkg/database"

// Store defines the persistence operations the broker depends on.
// This abstraction allows for easier testing and potential future backends.
// Each call is assumed atomic from the broker's point of view; in particular
// message creation links attachments all-or-nothing.
type Store interface {
	// Direct messages
	CreateDirectMessage(senderID, receiverID int64, content string, attachments []database.NewAttachment) (*database.DirectMessage, error)
	DirectMessage(id int64) (*database.DirectMessage, error)
	MarkDirectRead(readerID, senderID int64) error
	SoftDeleteDirectMessage(id int64) (bool, error)
	EditDirectMessage(id int64, content string) (*database.DirectMessage, error)

	// Group messages
	CreateGroupMessage(groupID, senderID int64, content string, attachments []database.NewAttachment) (*database.GroupMessage, error)
	GroupMessage(id int64) (*database.GroupMessage, error)
	GroupMembers(groupID int64) ([]int64, error)
	MarkGroupRead(userID, groupID int64) error
	SoftDeleteGroupMessage(id int64) (bool, error)
	EditGroupMessage(id int64, content string) (*database.GroupMessage, error)
}

// TokenValidator checks a bearer token, returning the user ID it belongs to.
// Used at admission time and periodically by each session's watchdog.
type TokenValidator interface {
	Validate(token string) (int64, error)
}
