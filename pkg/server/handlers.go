package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/parley-chat/parley/pkg/auth"
	"github.com/parley-chat/parley/pkg/database"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := auth.ValidateUsernameFormat(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := auth.ValidatePasswordFormat(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.db.CreateUser(req.Username, auth.HashPassword(req.Password, req.Username))
	if errors.Is(err, database.ErrUsernameTaken) {
		writeError(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		errorLog.Printf("Failed to create user %q: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		errorLog.Printf("Failed to issue token for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.db.UserByUsername(req.Username)
	if errors.Is(err, database.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		errorLog.Printf("Failed to fetch user %q: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if !auth.VerifyPassword(req.Password, user.Username, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		errorLog.Printf("Failed to issue token for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, UserID: user.ID, Username: user.Username})
}

type contactResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

func (s *Server) handleContacts(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, userID int64) {
	contacts, err := s.db.Contacts(userID)
	if err != nil {
		errorLog.Printf("Failed to list contacts for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}

	out := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactResponse{UserID: c.UserID, Username: c.Username})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request, _ httprouter.Params, userID int64) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	contact, err := s.db.UserByUsername(req.Username)
	if errors.Is(err, database.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		errorLog.Printf("Failed to fetch user %q: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "failed to add contact")
		return
	}
	if contact.ID == userID {
		writeError(w, http.StatusBadRequest, "cannot add yourself as a contact")
		return
	}

	if err := s.db.AddContact(userID, contact.ID); err != nil {
		errorLog.Printf("Failed to add contact %d for user %d: %v", contact.ID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to add contact")
		return
	}

	writeJSON(w, http.StatusCreated, contactResponse{UserID: contact.ID, Username: contact.Username})
}

type conversationResponse struct {
	ContactID   int64  `json:"contactId"`
	Username    string `json:"username"`
	LastMessage string `json:"lastMessage"`
	SentAt      string `json:"sentAt"`
	UnreadCount int64  `json:"unreadCount"`
	Deleted     bool   `json:"deleted"`
}

func (s *Server) handleConversations(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, userID int64) {
	conversations, err := s.db.RecentConversations(userID)
	if err != nil {
		errorLog.Printf("Failed to list conversations for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	out := make([]conversationResponse, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, conversationResponse{
			ContactID:   c.ContactID,
			Username:    c.Username,
			LastMessage: c.LastMessage,
			SentAt:      formatTime(c.SentAt),
			UnreadCount: c.UnreadCount,
			Deleted:     c.Deleted,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type attachmentResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FileType string `json:"fileType"`
}

type directMessageResponse struct {
	ID          int64                `json:"id"`
	SenderID    int64                `json:"senderId"`
	ReceiverID  int64                `json:"receiverId"`
	Content     string               `json:"content"`
	SentAt      string               `json:"sentAt"`
	Read        bool                 `json:"read"`
	Edited      bool                 `json:"edited"`
	Deleted     bool                 `json:"deleted"`
	Attachments []attachmentResponse `json:"attachments"`
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, _ *http.Request, ps httprouter.Params, userID int64) {
	contactID, err := strconv.ParseInt(ps.ByName("uid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	messages, err := s.db.ConversationMessages(userID, contactID)
	if err != nil {
		errorLog.Printf("Failed to list messages between %d and %d: %v", userID, contactID, err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	out := make([]directMessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, directMessageResponse{
			ID:          m.ID,
			SenderID:    m.SenderID,
			ReceiverID:  m.ReceiverID,
			Content:     m.Content,
			SentAt:      formatTime(m.SentAt),
			Read:        m.Read,
			Edited:      m.Edited,
			Deleted:     m.Deleted,
			Attachments: attachmentResponses(m.Attachments),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type groupResponse struct {
	GroupID     int64  `json:"groupId"`
	Name        string `json:"name"`
	UnreadCount int64  `json:"unreadCount"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request, _ httprouter.Params, userID int64) {
	var req struct {
		Name      string  `json:"name"`
		MemberIDs []int64 `json:"memberIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "group name is required")
		return
	}

	group, err := s.db.CreateGroup(req.Name, userID, req.MemberIDs)
	if err != nil {
		errorLog.Printf("Failed to create group %q: %v", req.Name, err)
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	writeJSON(w, http.StatusCreated, groupResponse{GroupID: group.ID, Name: group.Name})
}

func (s *Server) handleGroups(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, userID int64) {
	groups, err := s.db.Groups(userID)
	if err != nil {
		errorLog.Printf("Failed to list groups for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}

	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupResponse{GroupID: g.GroupID, Name: g.Name, UnreadCount: g.UnreadCount})
	}
	writeJSON(w, http.StatusOK, out)
}

type groupMessageResponse struct {
	ID          int64                `json:"id"`
	SenderID    int64                `json:"senderId"`
	Username    string               `json:"username"`
	GroupID     int64                `json:"groupId"`
	Content     string               `json:"content"`
	SentAt      string               `json:"sentAt"`
	Edited      bool                 `json:"edited"`
	Deleted     bool                 `json:"deleted"`
	Attachments []attachmentResponse `json:"attachments"`
}

func (s *Server) handleGroupMessages(w http.ResponseWriter, _ *http.Request, ps httprouter.Params, userID int64) {
	groupID, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	member, err := s.db.IsGroupMember(groupID, userID)
	if err != nil {
		errorLog.Printf("Failed to check membership of user %d in group %d: %v", userID, groupID, err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a group member")
		return
	}

	messages, err := s.db.GroupMessages(groupID)
	if err != nil {
		errorLog.Printf("Failed to list messages of group %d: %v", groupID, err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	out := make([]groupMessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, groupMessageResponse{
			ID:          m.ID,
			SenderID:    m.SenderID,
			Username:    m.Username,
			GroupID:     m.GroupID,
			Content:     m.Content,
			SentAt:      formatTime(m.SentAt),
			Edited:      m.Edited,
			Deleted:     m.Deleted,
			Attachments: attachmentResponses(m.Attachments),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAttachment(w http.ResponseWriter, _ *http.Request, ps httprouter.Params, _ int64) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attachment id")
		return
	}

	att, err := s.db.Attachment(id)
	if errors.Is(err, database.ErrAttachmentNotFound) {
		writeError(w, http.StatusNotFound, "attachment not found")
		return
	}
	if err != nil {
		errorLog.Printf("Failed to fetch attachment %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch attachment")
		return
	}

	w.Header().Set("Content-Type", database.ContentType(att.FileType))
	w.WriteHeader(http.StatusOK)
	w.Write(att.Content)
}

func attachmentResponses(refs []database.AttachmentRef) []attachmentResponse {
	out := make([]attachmentResponse, 0, len(refs))
	for _, r := range refs {
		out = append(out, attachmentResponse{ID: r.ID, Name: r.Name, FileType: r.FileType})
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
