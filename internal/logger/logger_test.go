package logger

import "testing"

func TestRedactMasksCredentialKeys(t *testing.T) {
	got := redact([]interface{}{"user_id", 7, "bot_token", "123:abc", "OPENAI_API_KEY", "sk-1"})
	if got[1] != 7 {
		t.Fatalf("expected user id untouched, got %v", got[1])
	}
	if got[3] != "[REDACTED]" || got[5] != "[REDACTED]" {
		t.Fatalf("expected credentials redacted, got %v", got)
	}
}

func TestRedactLeavesOddTail(t *testing.T) {
	got := redact([]interface{}{"k", "v", "dangling"})
	if len(got) != 3 || got[2] != "dangling" {
		t.Fatalf("unexpected output %v", got)
	}
}
