package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"traffic-quiz-service/internal/logger"
)

func TestNotifierSendsMessage(t *testing.T) {
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Quiz","username":"quiz_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			sent = append(sent, r.FormValue("chat_id")+":"+r.FormValue("text"))
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":77,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	n, err := NewNotifierWithEndpoint("token", srv.URL+"/bot%s/%s", srv.Client(), logger.Nop())
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := n.Notify(context.Background(), 77, "Subscription renewed"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sent) != 1 || sent[0] != "77:Subscription renewed" {
		t.Fatalf("unexpected sends %v", sent)
	}
}
