// Package telegram notifies the owner about observed pointer updates and
// answers a few read-only commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/memchain/internal/config"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/conv"
	"github.com/sandevgo/memchain/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const baseContextKey = "base_context"

// PointerReader resolves an agent's current head CID.
type PointerReader interface {
	GetPointer(ctx context.Context, agent string) (string, error)
}

type Bot struct {
	bot      *tele.Bot
	sender   *sender
	ownerID  int64
	silent   bool
	pointers PointerReader
	agents   []string
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	pointers PointerReader,
	agents []string,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:      b,
		sender:   newSender(b),
		ownerID:  cfg.OwnerID,
		silent:   cfg.Silent,
		pointers: pointers,
		agents:   agents,
	}

	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	// Only the owner may talk to the bot
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || c.Sender().ID != bot.ownerID {
				return nil
			}
			return next(c)
		}
	})

	b.Handle("/pointer", bot.handlePointer)

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting telegram bot")
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

// NotifyUpdate tells the owner that an agent moved its pointer.
func (b *Bot) NotifyUpdate(ctx context.Context, update core.ObservedUpdate) error {
	return b.sender.sendMarkdown(ctx, tele.ChatID(b.ownerID), formatUpdate(update), b.silent)
}

func (b *Bot) handlePointer(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	return b.sender.sendMarkdown(ctx, c.Chat(), pointerReport(ctx, b.pointers, b.agents), false)
}

func formatUpdate(u core.ObservedUpdate) string {
	return fmt.Sprintf("*Memory updated*\nagent `%s`\ncid `%s`\nat %s",
		u.Agent, u.CID, u.ObservedAt.UTC().Format(time.DateTime))
}

func pointerReport(ctx context.Context, pointers PointerReader, agents []string) string {
	if len(agents) == 0 {
		return "No agents configured."
	}

	var sb strings.Builder
	sb.WriteString("*Pointers*\n")
	for _, agent := range agents {
		cid, err := pointers.GetPointer(ctx, agent)
		switch {
		case errors.Is(err, core.ErrNotFound):
			fmt.Fprintf(&sb, "- `%s`: no memory yet\n", agent)
		case err != nil:
			fmt.Fprintf(&sb, "- `%s`: error: %s\n", agent, conv.EscapeMarkdown(err.Error()))
		default:
			fmt.Fprintf(&sb, "- `%s`: `%s`\n", agent, cid)
		}
	}
	return sb.String()
}
