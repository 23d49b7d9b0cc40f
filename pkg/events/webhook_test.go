package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

func TestWebhookNotifier_DeliversSignedRequest(t *testing.T) {
	secret := []byte("test-secret")
	received := make(chan *http.Request, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, secret, logging.NewNopLogger())
	bus := NewBus(nil, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx, bus)

	bus.Publish(ctx, model.Event{NodeID: 1, Kind: "test_event", Severity: model.SeverityInfo, Detail: "d"})

	select {
	case req := <-received:
		auth := req.Header.Get("Authorization")
		if len(auth) < len("Bearer ") || auth[:7] != "Bearer " {
			t.Fatalf("missing bearer prefix in Authorization header: %q", auth)
		}
		tokenStr := auth[7:]
		token, err := jwt.Parse(tokenStr, func(tok *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			t.Fatalf("token did not validate: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered in time")
	}
}
