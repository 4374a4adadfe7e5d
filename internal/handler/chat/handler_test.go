package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/care-portal/backend/internal/handler/handlertest"
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
)

func setupRouter(t *testing.T) (*chi.Mux, *handlertest.Env) {
	env := handlertest.New(t)
	r := chi.NewRouter()
	New(env.Registry).RegisterRoutes(r)
	return r, env
}

func jsonRequest(method, path string, body any) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStartSessionDefaultsCategory(t *testing.T) {
	r, _ := setupRouter(t)

	resp := handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/session", map[string]string{}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var session chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Category != chat.DefaultCategory || session.Status != chat.StatusActive {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestSendMessageWithoutSession(t *testing.T) {
	r, _ := setupRouter(t)

	resp := handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/messages", map[string]string{"text": "Hello"}))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}

func TestSendWhitespaceMessage(t *testing.T) {
	r, _ := setupRouter(t)
	handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/session", map[string]string{"category": "prescription"}))

	resp := handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/messages", map[string]string{"text": "   "}))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}

	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != string(portal.KindEmptyMessage) {
		t.Fatalf("expected kind %s, got %s", portal.KindEmptyMessage, body.Kind)
	}
}

func TestSendMessageReceivesReply(t *testing.T) {
	r, env := setupRouter(t)
	handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/session", map[string]string{"category": "general"}))

	resp := handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/messages", map[string]string{"text": "Hello"}))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}

	var session chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	last, ok := session.Last()
	if !ok || last.Text != "Hello" || last.Direction != chat.Sent {
		t.Fatalf("expected Hello as last sent message, got %+v", last)
	}

	env.Workspace(t).Controller.Wait()

	resp = handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/chat/messages", nil))
	var transcript transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcript); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if transcript.Session == nil || len(transcript.Session.Messages) != 2 {
		t.Fatalf("expected two messages, got %+v", transcript.Session)
	}
	if transcript.Session.Messages[1].Direction != chat.Received {
		t.Fatalf("expected doctor reply, got %+v", transcript.Session.Messages[1])
	}
	if transcript.Typing {
		t.Fatalf("expected typing indicator off after reply")
	}
}

func TestEndSessionTwice(t *testing.T) {
	r, _ := setupRouter(t)
	handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/session", map[string]string{}))

	resp := handlertest.Serve(r, httptest.NewRequest(http.MethodDelete, "/chat/session", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = handlertest.Serve(r, httptest.NewRequest(http.MethodDelete, "/chat/session", nil))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for second end, got %d", resp.Code)
	}
}

func TestAppendLocalMessage(t *testing.T) {
	r, _ := setupRouter(t)
	handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/session", map[string]string{}))

	resp := handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/messages/local",
		map[string]string{"text": "Note from clinic", "direction": "received"}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/messages/local",
		map[string]string{"text": "x", "direction": "sideways"}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad direction, got %d", resp.Code)
	}
}

func TestListAndOpenPastSessions(t *testing.T) {
	r, env := setupRouter(t)

	resp := handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/session", map[string]string{"category": "cardiology"}))
	var first chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.DoctorID != "dr-sarah-johnson" {
		t.Fatalf("expected cardiology doctor, got %q", first.DoctorID)
	}
	if _, err := env.Chat.SaveMessage(context.Background(), chat.Message{SessionID: first.ID, Text: "Chest feels tight after running"}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	handlertest.Serve(r, jsonRequest(http.MethodPost, "/chat/session", map[string]string{"category": "general"}))

	resp = handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/chat/sessions?category=cardiology", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var listed []chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != first.ID {
		t.Fatalf("unexpected sessions %+v", listed)
	}

	resp = handlertest.Serve(r, httptest.NewRequest(http.MethodPost, "/chat/sessions/"+first.ID+"/open", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	snap := env.Workspace(t).Controller.Snapshot()
	if snap.Chat == nil || snap.Chat.ID != first.ID {
		t.Fatalf("expected session %s to be current, got %+v", first.ID, snap.Chat)
	}
	if len(snap.Chat.Messages) == 0 || snap.Chat.Messages[0].Text != "Chest feels tight after running" {
		t.Fatalf("expected transcript to be restored, got %+v", snap.Chat.Messages)
	}

	resp = handlertest.Serve(r, httptest.NewRequest(http.MethodPost, "/chat/sessions/missing/open", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
