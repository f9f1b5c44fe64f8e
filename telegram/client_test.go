// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"context"
	"encoding/json"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bvkgo/kv/kvmemdb"
)

func TestParseCommand(t *testing.T) {
	cmd, args, err := parseCommand("/status EURUSD  USDJPY", 7)
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "status" || !slices.Equal(args, []string{"EURUSD", "USDJPY"}) {
		t.Fatalf("unexpected command %q %q", cmd, args)
	}

	cmd, _, err = parseCommand("/snapshot@pipwatch_bot", 22)
	if err != nil || cmd != "snapshot" {
		t.Fatalf("want snapshot command, got %q %v", cmd, err)
	}

	if _, _, err := parseCommand("status", 6); err == nil {
		t.Fatalf("want error for text without a slash")
	}
}

func TestSplitText(t *testing.T) {
	text := strings.Repeat("0123456789\n", 10)
	chunks := splitText(text, 25)
	for _, c := range chunks {
		if len(c) > 25 {
			t.Fatalf("chunk is larger than the limit: %q", c)
		}
	}
	if strings.Join(chunks, "\n") != strings.TrimSuffix(text, "\n") {
		t.Fatalf("chunks do not reassemble the text: %q", chunks)
	}
	if got := splitText(strings.Repeat("x", 30), 25); len(got) != 2 || len(got[0]) != 25 {
		t.Fatalf("want hard split for long lines, got %q", got)
	}
}

func TestSecrets(t *testing.T) {
	s := &Secrets{BotToken: "token", OwnerID: "owner", OtherIDs: []string{"owner"}}
	if err := s.Check(); err == nil {
		t.Fatalf("want error for repeated owner id")
	}
	s.OtherIDs = []string{"friend"}
	if err := s.Check(); err != nil {
		t.Fatal(err)
	}
	if !s.isValidUser("friend") || s.isValidUser("stranger") || s.isValidUser("") {
		t.Fatalf("unexpected user validation")
	}
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	data, err := os.ReadFile("telegram-creds.json")
	if err != nil {
		t.Skip("no credentials")
		return
	}
	secrets := new(Secrets)
	if err := json.Unmarshal(data, secrets); err != nil {
		t.Fatal(err)
	}

	c, err := New(ctx, kvmemdb.New(), secrets, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	t.Logf("Authorized on account %s with owner %s", c.BotUserName(), c.OwnerUserName())
	if err := c.SendMessage(ctx, time.Now(), "hello"); err != nil {
		t.Fatal(err)
	}
}
