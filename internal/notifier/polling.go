package notifier

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"
)

// CommandHandler answers one chat command. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, command string) string

const pollRetryDelay = 5 * time.Second

type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
	} `json:"message"`
}

type updatesQuery struct {
	Offset         int      `json:"offset"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// command returns the trimmed message text with any @bot suffix removed
// from the leading command word.
func (u telegramUpdate) command() string {
	if u.Message == nil {
		return ""
	}
	fields := strings.Fields(u.Message.Text)
	if len(fields) == 0 {
		return ""
	}
	if strings.HasPrefix(fields[0], "/") {
		fields[0], _, _ = strings.Cut(fields[0], "@")
	}
	return strings.Join(fields, " ")
}

// getUpdates long-polls for messages after offset.
func (t *TelegramNotifier) getUpdates(ctx context.Context, client *http.Client, offset int, timeout time.Duration) ([]telegramUpdate, error) {
	return call[[]telegramUpdate](ctx, t, client, "getUpdates", updatesQuery{
		Offset:         offset,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message"},
	})
}

// StartPolling answers chat commands with handler until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, pollTimeout time.Duration, handler CommandHandler) {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	client := &http.Client{Timeout: pollTimeout + 5*time.Second, Transport: t.Client.Transport}

	offset := 0
	for ctx.Err() == nil {
		updates, err := t.getUpdates(ctx, client, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("[WARN] telegram polling: %v", err)
			if !wait(ctx, pollRetryDelay) {
				break
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			t.dispatch(ctx, u, handler)
		}
	}
	log.Println("[INFO] telegram polling stopped")
}

func (t *TelegramNotifier) dispatch(ctx context.Context, u telegramUpdate, handler CommandHandler) {
	cmd := u.command()
	if cmd == "" {
		return
	}
	log.Printf("[INFO] telegram command %q", cmd)
	reply := handler(ctx, cmd)
	if reply == "" {
		return
	}
	if err := t.Send(ctx, reply); err != nil {
		log.Printf("[ERROR] telegram reply to %q: %v", cmd, err)
	}
}
