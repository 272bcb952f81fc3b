package genai

import "testing"

func TestBuildMessagesOrder(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "weird", Content: "noted"},
	}
	messages := buildMessages("you are a coach", history, "plan my day")
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	if messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if messages[1].OfUser == nil || messages[2].OfAssistant == nil {
		t.Error("history roles not preserved")
	}
	if messages[3].OfUser == nil {
		t.Error("unknown roles should degrade to user turns")
	}
	if messages[4].OfUser == nil {
		t.Error("current utterance should be the final user message")
	}
}

func TestBuildMessagesOmitsEmptyParts(t *testing.T) {
	messages := buildMessages("", nil, "hello")
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	messages = buildMessages("sys", nil, "")
	if len(messages) != 1 {
		t.Fatalf("expected system-only to yield 1 message, got %d", len(messages))
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when no API key is configured")
	}
	c, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o-mini"))
	if err != nil {
		t.Fatalf("NewClient with explicit key failed: %v", err)
	}
	if c.model != "gpt-4o-mini" {
		t.Errorf("model option not applied: %q", c.model)
	}
}
