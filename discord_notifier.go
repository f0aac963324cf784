package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxQueued   = 8
	discordMaxChars    = 1000
	discordSendSpacing = 2 * time.Second
)

// blockNotifier posts found-block notices to a Discord channel over the REST
// API; no gateway connection is opened. A nil *blockNotifier is a no-op.
type blockNotifier struct {
	dg        *discordgo.Session
	channelID string
	network   string

	mu      sync.Mutex
	queue   []string
	dropped int
	wake    chan struct{}
}

// newBlockNotifier returns nil when no token or channel is configured.
func newBlockNotifier(cfg Config) (*blockNotifier, error) {
	token := strings.TrimSpace(cfg.DiscordBotToken)
	channelID := strings.TrimSpace(cfg.DiscordChannelID)
	if token == "" || channelID == "" {
		return nil, nil
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &blockNotifier{
		dg:        dg,
		channelID: channelID,
		network:   cfg.NetworkName(),
		wake:      make(chan struct{}, 1),
	}, nil
}

func formatBlockNotice(network string, rec blockRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s block %d submitted", poolSoftwareName, network, rec.Height)
	if rec.HeaderHash != "" {
		fmt.Fprintf(&b, " | header %s", rec.HeaderHash)
	}
	if rec.PayoutAddr != "" {
		fmt.Fprintf(&b, " | payout %s", rec.PayoutAddr)
	}
	if rec.Worker != "" {
		fmt.Fprintf(&b, " | worker %s", rec.Worker)
	}
	msg := b.String()
	if len(msg) > discordMaxChars {
		msg = msg[:discordMaxChars]
	}
	return msg
}

// NotifyBlock queues a notice for rec. When the queue is full the notice is
// dropped and counted; the next successful send reports the drop count.
func (n *blockNotifier) NotifyBlock(rec blockRecord) {
	if n == nil {
		return
	}
	n.enqueue(formatBlockNotice(n.network, rec))
}

func (n *blockNotifier) enqueue(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	n.mu.Lock()
	if len(n.queue) >= discordMaxQueued {
		n.dropped++
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, msg)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *blockNotifier) pending() int {
	if n == nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// run sends queued notices one at a time, spaced to stay under the channel
// rate limit, until ctx is done.
func (n *blockNotifier) run(ctx context.Context) {
	if n == nil {
		return
	}
	ticker := time.NewTicker(discordSendSpacing)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.wake:
		case <-ticker.C:
		}
		n.sendNext()
	}
}

func (n *blockNotifier) sendNext() {
	n.mu.Lock()
	if len(n.queue) == 0 {
		n.mu.Unlock()
		return
	}
	next := n.queue[0]
	n.mu.Unlock()

	_, err := n.dg.ChannelMessageSendComplex(n.channelID, &discordgo.MessageSend{
		Content:         next,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		logger.Warn("discord notify send failed", "error", err)
		if !isDiscordPermanentError(err) {
			return
		}
	}

	n.mu.Lock()
	if len(n.queue) > 0 {
		n.queue = n.queue[1:]
	}
	if err == nil && n.dropped > 0 && len(n.queue) < discordMaxQueued {
		n.queue = append(n.queue, fmt.Sprintf("[%s] notification backlog full; dropped %d notices", poolSoftwareName, n.dropped))
		n.dropped = 0
	}
	n.mu.Unlock()
}

func (n *blockNotifier) Close() {
	if n == nil || n.dg == nil {
		return
	}
	_ = n.dg.Close()
}

func isDiscordPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}
