package chat

import (
	"context"
	"path/filepath"
	"testing"

	"localchat/models"
	"localchat/store"
)

type stubResponder struct {
	reply string
	// release, when set, blocks Respond until the test closes it.
	release chan struct{}
	started chan struct{}
}

func (s *stubResponder) Respond(ctx context.Context, prompt, conversationID string) string {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.reply
}

func setupTestLog(t *testing.T, bot Responder) (*Log, *store.Store) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewLog(st, bot, nil), st
}

func TestSendPersistsWholeLog(t *testing.T) {
	l, st := setupTestLog(t, &stubResponder{})

	msg, err := l.Send("user_1", "hello", models.GlobalChatID)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if msg.SenderID != "user_1" || msg.ReceiverID != models.GlobalChatID || msg.Text != "hello" {
		t.Errorf("Unexpected message %+v", msg)
	}
	if msg.ID == "" || msg.Timestamp == 0 {
		t.Errorf("Expected fresh id and timestamp, got %+v", msg)
	}

	stored, err := st.Messages()
	if err != nil {
		t.Fatalf("Failed to read messages: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != msg.ID {
		t.Errorf("Expected persisted log of 1, got %+v", stored)
	}
}

func TestEditMarksEdited(t *testing.T) {
	l, st := setupTestLog(t, &stubResponder{})

	msg, _ := l.Send("user_1", "hello", models.GlobalChatID)

	if err := l.Edit(msg.ID, "new text"); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}

	visible := l.VisibleMessages(models.GlobalChatID, "user_1")
	if len(visible) != 1 || visible[0].Text != "new text" || !visible[0].IsEdited {
		t.Errorf("Expected edited message, got %+v", visible)
	}

	stored, _ := st.Messages()
	if stored[0].Text != "new text" || !stored[0].IsEdited {
		t.Errorf("Edit not persisted: %+v", stored[0])
	}
}

func TestEditUnknownIDIsNoop(t *testing.T) {
	l, _ := setupTestLog(t, &stubResponder{})

	l.Send("user_1", "hello", models.GlobalChatID)
	if err := l.Edit("msg_missing", "x"); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}

	visible := l.VisibleMessages(models.GlobalChatID, "user_1")
	if visible[0].Text != "hello" || visible[0].IsEdited {
		t.Errorf("Log changed by unknown-id edit: %+v", visible[0])
	}
}

func TestDeleteRemovesMessage(t *testing.T) {
	l, st := setupTestLog(t, &stubResponder{})

	first, _ := l.Send("user_1", "first", models.GlobalChatID)
	second, _ := l.Send("user_1", "second", models.GlobalChatID)

	if err := l.Delete(first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	visible := l.VisibleMessages(models.GlobalChatID, "user_1")
	for _, msg := range visible {
		if msg.ID == first.ID {
			t.Error("Deleted message still visible")
		}
	}
	if len(visible) != 1 || visible[0].ID != second.ID {
		t.Errorf("Expected only second message, got %+v", visible)
	}

	stored, _ := st.Messages()
	if len(stored) != 1 {
		t.Errorf("Hard delete not persisted: %+v", stored)
	}

	if err := l.Delete("msg_missing"); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
}

func TestVisibleMessagesFilter(t *testing.T) {
	l, _ := setupTestLog(t, &stubResponder{})

	l.Send("user_1", "to everyone", models.GlobalChatID)
	l.Send("user_1", "to bob", "user_2")
	l.Send("user_2", "to alice", "user_1")
	l.Send("user_2", "to carol", "user_3")
	l.Send("user_3", "also global", models.GlobalChatID)

	global := l.VisibleMessages(models.GlobalChatID, "user_1")
	if len(global) != 2 {
		t.Errorf("Expected 2 global messages, got %d", len(global))
	}
	for _, msg := range global {
		if msg.ReceiverID != models.GlobalChatID {
			t.Errorf("Non-global message in global view: %+v", msg)
		}
	}

	// Direct chat shows both directions, in insertion order.
	direct := l.VisibleMessages("user_2", "user_1")
	if len(direct) != 2 {
		t.Fatalf("Expected 2 direct messages, got %d", len(direct))
	}
	if direct[0].Text != "to bob" || direct[1].Text != "to alice" {
		t.Errorf("Wrong order or content: %+v", direct)
	}

	// user_3 never talked to user_1.
	if msgs := l.VisibleMessages("user_3", "user_1"); len(msgs) != 0 {
		t.Errorf("Expected empty view, got %+v", msgs)
	}
}

func TestBotConversation(t *testing.T) {
	stub := &stubResponder{
		reply:   "hi there!",
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	l, st := setupTestLog(t, stub)

	msg, err := l.Send("user_1", "hi", models.BotID)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The human's message is appended immediately and the bot is
	// composing while the adapter call is in flight.
	<-stub.started
	if !l.BotTyping() {
		t.Error("Expected bot typing while adapter call is in flight")
	}
	visible := l.VisibleMessages(models.BotID, "user_1")
	if len(visible) != 1 || visible[0].ID != msg.ID {
		t.Errorf("Expected only the human message so far, got %+v", visible)
	}

	close(stub.release)
	l.Wait()

	if l.BotTyping() {
		t.Error("Expected typing cleared after the adapter resolved")
	}

	visible = l.VisibleMessages(models.BotID, "user_1")
	if len(visible) != 2 {
		t.Fatalf("Expected human + bot messages, got %+v", visible)
	}
	reply := visible[1]
	if reply.SenderID != models.BotID || reply.ReceiverID != "user_1" || reply.Text != "hi there!" {
		t.Errorf("Unexpected bot reply %+v", reply)
	}

	stored, _ := st.Messages()
	if len(stored) != 2 {
		t.Errorf("Bot reply not persisted: %+v", stored)
	}
}

func TestNonBotSendDoesNotTriggerAdapter(t *testing.T) {
	stub := &stubResponder{reply: "should not appear"}
	l, _ := setupTestLog(t, stub)

	l.Send("user_1", "hello", "user_2")
	l.Wait()

	if l.BotTyping() {
		t.Error("Typing set for a non-bot send")
	}
	if msgs := l.Snapshot(); len(msgs) != 1 {
		t.Errorf("Adapter ran for a non-bot send: %+v", msgs)
	}
}

func TestReplaceIfChanged(t *testing.T) {
	l, _ := setupTestLog(t, &stubResponder{})

	msg, _ := l.Send("user_1", "hello", models.GlobalChatID)

	// Identical content: no replacement.
	if l.ReplaceIfChanged(l.Snapshot()) {
		t.Error("Replaced despite identical content")
	}

	edited := l.Snapshot()
	edited[0].Text = "changed elsewhere"
	edited[0].IsEdited = true
	if !l.ReplaceIfChanged(edited) {
		t.Error("Expected replacement on divergent content")
	}

	visible := l.VisibleMessages(models.GlobalChatID, "user_1")
	if visible[0].ID != msg.ID || visible[0].Text != "changed elsewhere" {
		t.Errorf("Replacement not reflected: %+v", visible[0])
	}
}
