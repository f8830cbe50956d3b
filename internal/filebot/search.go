package filebot

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/telemetry"
)

const (
	msgQueryTooShort = "Please enter a search term with at least %d characters."
	msgQuotaReached  = "⏱️ You've reached the %d searches/%s limit. Try again later."
	msgSearching     = "🔍 Searching in database channels..."
	msgNoResults     = "No files found."
	msgSelectFile    = "📂 Select a file:"
	msgSearchExpired = "Search expired, please search again."

	dynIDLength  = 10
	dynIDLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// search answers a free-text query from a private chat.
func (b *Bot) search(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	cfg := b.Config()

	if !b.gate(ctx, chatID, userID) {
		b.metrics.Search("not_subscribed", 0, 0)
		return
	}

	query, err := security.NormalizeQuery(msg.Text, cfg.MinQueryLength)
	if err != nil {
		b.metrics.Search("too_short", 0, 0)
		b.reply(ctx, chatID, fmt.Sprintf(msgQueryTooShort, cfg.MinQueryLength), nil)
		return
	}

	b.mu.RLock()
	quota := b.quota
	b.mu.RUnlock()
	if err := quota.Allow(strconv.FormatInt(userID, 10)); err != nil {
		b.metrics.Search("rate_limited", 0, 0)
		b.audit.Log(security.AuditEvent{
			Type: security.EventRateLimit, Module: "bot.filebot",
			ChatID: chatID, UserID: userID, Detail: "search quota reached",
		})
		b.reply(ctx, chatID, quotaMessage(quota.Config()), nil)
		return
	}

	b.reply(ctx, chatID, msgSearching, nil)

	if batch, err := b.registry.BatchByKeyword(ctx, query); err == nil {
		b.reply(ctx, chatID, fmt.Sprintf("📦 A batch is available for %q:", batch.Keyword),
			tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("📦 Get batch", b.batchLink(batch.ID)),
			)))
	} else if !errors.Is(err, store.ErrNotFound) {
		b.logger.Warn("filebot: batch keyword lookup", "error", err)
	}

	start := b.now()
	docs, err := b.searchChannels(ctx, query, cfg)
	elapsed := max(b.now().Sub(start), time.Nanosecond)
	if err != nil {
		b.metrics.Search("error", 0, elapsed)
		b.fail(ctx, chatID, "search", err)
		return
	}

	b.logEvent(ctx, fmt.Sprintf("🔎 %s searched %q: %d result(s)", displayName(msg.From), query, len(docs)))
	if len(docs) == 0 {
		b.metrics.Search("empty", 0, elapsed)
		b.reply(ctx, chatID, msgNoResults, nil)
		return
	}
	b.metrics.Search("ok", len(docs), elapsed)

	if err := b.cache.Put(ctx, chatID, docs, cfg.SearchCacheTTL); err != nil {
		b.logger.Warn("filebot: caching search results", "chat_id", chatID, "error", err)
	}
	text, markup := b.renderPage(ctx, docs, 0, cfg.PageSize)
	b.reply(ctx, chatID, text, markup)
}

// searchChannels queries every DB channel concurrently. A failing channel
// is logged and skipped; results keep channel registration order.
func (b *Bot) searchChannels(ctx context.Context, query string, cfg Config) ([]store.Document, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "filebot.search")
	defer span.End()

	channels, err := b.registry.Channels(ctx, store.KindDB)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("filebot: loading db channels: %w", err)
	}
	span.SetAttributes(
		attribute.Int("filebot.channels", len(channels)),
		attribute.Int("filebot.query_length", len([]rune(query))),
	)

	perChannel := make([][]store.Document, len(channels))
	var g errgroup.Group
	g.SetLimit(cfg.SearchConcurrency)
	for i, ch := range channels {
		g.Go(func() error {
			cctx, cspan := telemetry.Tracer().Start(ctx, "filebot.search.channel",
				traceChannel(ch.ID))
			defer cspan.End()

			docs, err := b.index.Search(cctx, ch.ID, query, cfg.SearchLimit)
			if err != nil {
				cspan.SetStatus(codes.Error, err.Error())
				b.logger.Error("filebot: search failed in channel", "channel_id", ch.ID, "error", err)
				return nil
			}
			cspan.SetAttributes(attribute.Int("filebot.results", len(docs)))
			perChannel[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	var out []store.Document
	for _, docs := range perChannel {
		out = append(out, docs...)
	}
	span.SetAttributes(attribute.Int("filebot.results", len(out)))
	return out, nil
}

func traceChannel(id int64) trace.SpanStartOption {
	return trace.WithAttributes(attribute.Int64("filebot.channel_id", id))
}

// showPage edits a result message to show page n of the cached results.
func (b *Bot) showPage(ctx context.Context, chatID int64, messageID int, n int) {
	docs, err := b.cache.Get(ctx, chatID)
	if err != nil || len(docs) == 0 {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("filebot: reading search cache", "chat_id", chatID, "error", err)
		}
		b.reply(ctx, chatID, msgSearchExpired, nil)
		return
	}
	text, markup := b.renderPage(ctx, docs, n, b.Config().PageSize)
	b.edit(ctx, chatID, messageID, text, &markup)
}

// renderPage builds the text and keyboard for page n (zero based). n is
// clamped to the available pages.
func (b *Bot) renderPage(ctx context.Context, docs []store.Document, n, size int) (string, tgbotapi.InlineKeyboardMarkup) {
	pages := (len(docs) + size - 1) / size
	n = min(max(n, 0), pages-1)
	page := docs[n*size : min((n+1)*size, len(docs))]

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(page)+1)
	for _, d := range page {
		label := fmt.Sprintf("📁 %s (%sMB)", d.FileName, formatSizeMB(d))
		if _, err := b.registry.Cover(ctx, d.FileName); err == nil {
			label += " 🖼️"
		}
		data := fmt.Sprintf("get_%d_%d_%s", d.ChannelID, d.MessageID, dynamicID())
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if n > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", fmt.Sprintf("page_%d", n-1)))
	}
	if n < pages-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("page_%d", n+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	text := msgSelectFile
	if pages > 1 {
		text = fmt.Sprintf("📂 Select a file (page %d/%d, %d results):", n+1, pages, len(docs))
	}
	return text, tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// formatSizeMB rounds to two decimals and drops trailing zeros.
func quotaMessage(cfg security.RateLimitConfig) string {
	return fmt.Sprintf(msgQuotaReached, cfg.Limit, windowLabel(cfg.Window))
}

// windowLabel names a quota window: "hour", "2 days", "90 seconds".
func windowLabel(d time.Duration) string {
	units := []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}
	for _, u := range units {
		if d < u.size || d%u.size != 0 {
			continue
		}
		if n := d / u.size; n > 1 {
			return fmt.Sprintf("%d %ss", n, u.name)
		}
		return u.name
	}
	return d.String()
}

func formatSizeMB(d store.Document) string {
	mb := math.Round(d.SizeMB()*100) / 100
	return strconv.FormatFloat(mb, 'f', -1, 64)
}

// dynamicID returns a random token that keeps callback data unique per
// button so clients never collapse identical buttons.
func dynamicID() string {
	buf := make([]byte, dynIDLength)
	_, _ = rand.Read(buf)
	for i, c := range buf {
		buf[i] = dynIDLetters[int(c)%len(dynIDLetters)]
	}
	return string(buf)
}
