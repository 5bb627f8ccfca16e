package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/pkg/broker"
	"github.com/parley-chat/parley/pkg/database"
	"github.com/parley-chat/parley/pkg/protocol"
)

func init() {
	discard := log.New(io.Discard, "", 0)
	SetLoggers(discard, discard)
	broker.SetLoggers(discard, discard)
}

// testServer creates a server backed by a temp-dir database. The broker loop
// is not started; WebSocket tests start it themselves.
func testServer(t *testing.T) *Server {
	t.Helper()

	cfg := DefaultTOMLConfig()
	cfg.Server.JWTSecret = "test-secret"

	srv, err := NewServer(filepath.Join(t.TempDir(), "test.db"), cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}
	t.Cleanup(func() { srv.db.Close() })
	return srv
}

func postJSON(t *testing.T, ts *httptest.Server, path, token string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func getWithToken(t *testing.T, ts *httptest.Server, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return v
}

// registerUser registers a user and returns the auth token and user ID
func registerUser(t *testing.T, ts *httptest.Server, username string) (string, int64) {
	t.Helper()
	resp := postJSON(t, ts, "/api/register", "", credentialsRequest{Username: username, Password: "hunter22!"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %q: expected 201, got %d", username, resp.StatusCode)
	}
	body := decodeBody[tokenResponse](t, resp)
	return body.Token, body.UserID
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	token, userID := registerUser(t, ts, "alice")
	if token == "" || userID == 0 {
		t.Fatal("register must return a token and user id")
	}

	// Duplicate username
	resp := postJSON(t, ts, "/api/register", "", credentialsRequest{Username: "alice", Password: "hunter22!"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Password too short
	resp = postJSON(t, ts, "/api/register", "", credentialsRequest{Username: "bob", Password: "short"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Username too short
	resp = postJSON(t, ts, "/api/register", "", credentialsRequest{Username: "ab", Password: "hunter22!"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short username: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Correct login
	resp = postJSON(t, ts, "/api/login", "", credentialsRequest{Username: "alice", Password: "hunter22!"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody[tokenResponse](t, resp)
	if body.UserID != userID || body.Token == "" {
		t.Fatalf("login response mismatch: %+v", body)
	}

	// Wrong password
	resp = postJSON(t, ts, "/api/login", "", credentialsRequest{Username: "alice", Password: "wrong-password"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown user looks identical to a wrong password
	resp = postJSON(t, ts, "/api/login", "", credentialsRequest{Username: "nobody", Password: "hunter22!"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthMiddlewareRejects(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := getWithToken(t, ts, "/api/contacts", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getWithToken(t, ts, "/api/contacts", "Bearer not-a-token")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalid token: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestContactEndpoints(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, bobID := registerUser(t, ts, "bob")

	resp := postJSON(t, ts, "/api/contacts", aliceToken, map[string]string{"username": "bob"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add contact: expected 201, got %d", resp.StatusCode)
	}
	added := decodeBody[contactResponse](t, resp)
	if added.UserID != bobID || added.Username != "bob" {
		t.Fatalf("wrong contact response: %+v", added)
	}

	// Unknown username
	resp = postJSON(t, ts, "/api/contacts", aliceToken, map[string]string{"username": "nobody"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown contact: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Self-add
	resp = postJSON(t, ts, "/api/contacts", aliceToken, map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self contact: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Contact links are bidirectional
	resp = getWithToken(t, ts, "/api/contacts", bobToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list contacts: expected 200, got %d", resp.StatusCode)
	}
	bobContacts := decodeBody[[]contactResponse](t, resp)
	if len(bobContacts) != 1 || bobContacts[0].UserID != aliceID {
		t.Fatalf("expected alice in bob's contacts, got %+v", bobContacts)
	}
}

func TestConversationEndpoints(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	aliceToken, aliceID := registerUser(t, ts, "alice")
	_, bobID := registerUser(t, ts, "bob")

	if _, err := srv.db.CreateDirectMessage(bobID, aliceID, "hi alice", nil); err != nil {
		t.Fatalf("CreateDirectMessage failed: %v", err)
	}
	if _, err := srv.db.CreateDirectMessage(aliceID, bobID, "hi bob", nil); err != nil {
		t.Fatalf("CreateDirectMessage failed: %v", err)
	}

	resp := getWithToken(t, ts, "/api/conversations", aliceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list conversations: expected 200, got %d", resp.StatusCode)
	}
	conversations := decodeBody[[]conversationResponse](t, resp)
	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(conversations))
	}
	if conversations[0].ContactID != bobID || conversations[0].LastMessage != "hi bob" {
		t.Fatalf("wrong conversation summary: %+v", conversations[0])
	}

	resp = getWithToken(t, ts, fmt.Sprintf("/api/conversations/%d/messages", bobID), aliceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list messages: expected 200, got %d", resp.StatusCode)
	}
	messages := decodeBody[[]directMessageResponse](t, resp)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "hi alice" || messages[1].Content != "hi bob" {
		t.Fatalf("wrong message ordering: %+v", messages)
	}

	resp = getWithToken(t, ts, "/api/conversations/garbage/messages", aliceToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad user id: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGroupEndpoints(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, bobID := registerUser(t, ts, "bob")
	outsiderToken, _ := registerUser(t, ts, "carol")

	resp := postJSON(t, ts, "/api/groups", aliceToken, map[string]any{
		"name":      "book club",
		"memberIds": []int64{bobID},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: expected 201, got %d", resp.StatusCode)
	}
	group := decodeBody[groupResponse](t, resp)
	if group.Name != "book club" || group.GroupID == 0 {
		t.Fatalf("wrong group response: %+v", group)
	}

	// Empty name rejected
	resp = postJSON(t, ts, "/api/groups", aliceToken, map[string]any{"name": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty group name: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if _, err := srv.db.CreateGroupMessage(group.GroupID, aliceID, "chapter one", nil); err != nil {
		t.Fatalf("CreateGroupMessage failed: %v", err)
	}

	// Bob is a member and sees the group with one unread
	resp = getWithToken(t, ts, "/api/groups", bobToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list groups: expected 200, got %d", resp.StatusCode)
	}
	groups := decodeBody[[]groupResponse](t, resp)
	if len(groups) != 1 || groups[0].UnreadCount != 1 {
		t.Fatalf("expected 1 group with 1 unread, got %+v", groups)
	}

	messagesPath := fmt.Sprintf("/api/groups/%d/messages", group.GroupID)
	resp = getWithToken(t, ts, messagesPath, bobToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("group messages: expected 200, got %d", resp.StatusCode)
	}
	messages := decodeBody[[]groupMessageResponse](t, resp)
	if len(messages) != 1 || messages[0].Content != "chapter one" || messages[0].Username != "alice" {
		t.Fatalf("wrong group messages: %+v", messages)
	}

	// Non-members cannot read the group
	resp = getWithToken(t, ts, messagesPath, outsiderToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAttachmentEndpoint(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	aliceToken, aliceID := registerUser(t, ts, "alice")
	_, bobID := registerUser(t, ts, "bob")

	pngBytes := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x01}
	msg, err := srv.db.CreateDirectMessage(aliceID, bobID, "pic", []database.NewAttachment{
		{Name: "cat.png", Content: pngBytes},
	})
	if err != nil {
		t.Fatalf("CreateDirectMessage failed: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment ref, got %d", len(msg.Attachments))
	}

	resp := getWithToken(t, ts, fmt.Sprintf("/api/attachments/%d", msg.Attachments[0].ID), aliceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch attachment: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read attachment body: %v", err)
	}
	if !bytes.Equal(body, pngBytes) {
		t.Fatal("attachment bytes mismatch")
	}

	resp = getWithToken(t, ts, "/api/attachments/12345", aliceToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown attachment: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func dialWS(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	return conn
}

func TestWebSocketAdmissionRejectsBadToken(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/ws", "/ws?token=bogus"} {
		resp, err := ts.Client().Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestWebSocketDirectMessageFlow(t *testing.T) {
	srv := testServer(t)
	go srv.broker.Run()
	t.Cleanup(srv.broker.Stop)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, bobID := registerUser(t, ts, "bob")

	aliceConn := dialWS(t, ts, aliceToken)
	defer aliceConn.Close()
	bobConn := dialWS(t, ts, bobToken)
	defer bobConn.Close()

	// Give both sessions a moment to register with the broker
	time.Sleep(100 * time.Millisecond)

	payload, err := protocol.EncodeRequest(&protocol.SendMessage{ReceiverUID: bobID, Message: "hello bob"})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	if err := aliceConn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readNotification := func(conn *websocket.Conn) *protocol.MessageNotification {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		n, err := protocol.DecodeNotification(data)
		if err != nil {
			t.Fatalf("decode notification: %v", err)
		}
		note, ok := n.(*protocol.MessageNotification)
		if !ok {
			t.Fatalf("expected MessageNotification, got %T", n)
		}
		return note
	}

	// The sender's own session gets a copy tagged isUser
	aliceNote := readNotification(aliceConn)
	if !aliceNote.IsUser || aliceNote.Content != "hello bob" {
		t.Fatalf("wrong sender copy: %+v", aliceNote)
	}

	bobNote := readNotification(bobConn)
	if bobNote.IsUser || bobNote.Content != "hello bob" || bobNote.SenderUID != aliceID {
		t.Fatalf("wrong receiver copy: %+v", bobNote)
	}
}
