// Copyright (c) 2023 BVK Chaitanya

package pushover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestSendMessage(t *testing.T) {
	var got map[string]any
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/messages.json" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		if got["token"] != "app" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":0,"errors":["application token is invalid"]}`))
			return
		}
		w.Write([]byte(`{"status":1,"request":"abc"}`))
	}))
	defer s.Close()

	c, err := New(&Keys{ApplicationKey: "app", UserKey: "user"}, "pipwatch")
	if err != nil {
		t.Fatal(err)
	}
	c.baseURL = s.URL

	at := time.Unix(1736195400, 0)
	if err := c.SendMessage(context.Background(), at, "EURUSD crossed 15 pips"); err != nil {
		t.Fatal(err)
	}
	if got["title"] != "pipwatch" || got["timestamp"] != float64(at.Unix()) {
		t.Fatalf("unexpected message %v", got)
	}

	c.token = "bad"
	if err := c.SendMessage(context.Background(), at, "x"); err == nil || !strings.Contains(err.Error(), "invalid") {
		t.Fatalf("want application token error, got %v", err)
	}

	if _, err := New(&Keys{}, ""); err == nil {
		t.Fatalf("want error for empty keys")
	}
}

// TestLiveMessage sends a real notification when keys are available.
func TestLiveMessage(t *testing.T) {
	data, err := os.ReadFile("pushover-keys.json")
	if err != nil {
		t.Skip("no keys")
		return
	}
	keys := new(Keys)
	if err := json.Unmarshal(data, keys); err != nil {
		t.Fatal(err)
	}
	c, err := New(keys, "pipwatch")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SendMessage(context.Background(), time.Now(), t.Name()); err != nil {
		t.Fatal(err)
	}
}
