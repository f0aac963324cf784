package main

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestNewBlockNotifierDisabled(t *testing.T) {
	cfg := defaultConfig()
	n, err := newBlockNotifier(cfg)
	if err != nil || n != nil {
		t.Fatalf("notifier without token = %v, %v", n, err)
	}
	// A nil notifier swallows everything.
	n.NotifyBlock(blockRecord{Height: 1})
	n.Close()
	if n.pending() != 0 {
		t.Fatal("nil notifier reports pending notices")
	}
}

func TestFormatBlockNotice(t *testing.T) {
	msg := formatBlockNotice("testnet", blockRecord{
		Height:     1234,
		HeaderHash: "abcd",
		PayoutAddr: "mAddr",
		Worker:     "mAddr.rig1",
	})
	for _, want := range []string{"testnet block 1234", "header abcd", "payout mAddr", "worker mAddr.rig1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("notice %q missing %q", msg, want)
		}
	}
	long := formatBlockNotice("mainnet", blockRecord{Height: 1, Worker: strings.Repeat("w", 2*discordMaxChars)})
	if len(long) != discordMaxChars {
		t.Fatalf("long notice length = %d, want %d", len(long), discordMaxChars)
	}
}

func TestBlockNotifierQueueBound(t *testing.T) {
	n := &blockNotifier{network: "mainnet", wake: make(chan struct{}, 1)}
	for i := 0; i < discordMaxQueued+3; i++ {
		n.NotifyBlock(blockRecord{Height: int64(i)})
	}
	if n.pending() != discordMaxQueued {
		t.Fatalf("pending = %d, want %d", n.pending(), discordMaxQueued)
	}
	if n.dropped != 3 {
		t.Fatalf("dropped = %d, want 3", n.dropped)
	}
	if len(n.wake) != 1 {
		t.Fatal("enqueue did not wake the sender")
	}
}

func TestIsDiscordPermanentError(t *testing.T) {
	rest := func(code int) error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
	}
	for code, want := range map[int]bool{
		http.StatusForbidden:       true,
		http.StatusNotFound:        true,
		http.StatusTooManyRequests: false,
		http.StatusBadGateway:      false,
		http.StatusUnauthorized:    true,
	} {
		if got := isDiscordPermanentError(rest(code)); got != want {
			t.Errorf("status %d permanent = %v, want %v", code, got, want)
		}
	}
	if !isDiscordPermanentError(discordgo.ErrUnauthorized) {
		t.Fatal("ErrUnauthorized should be permanent")
	}
	if isDiscordPermanentError(errors.New("connection reset")) || isDiscordPermanentError(nil) {
		t.Fatal("transport errors are not permanent")
	}
}
