package filebot

import (
	"strings"
)

// CaptionData is the input of caption_template.
type CaptionData struct {
	FileName    string
	Size        int64
	SizeMB      string
	Caption     string
	Keyword     string
	BotUsername string
}

// maxCaptionLength is the Bot API limit for media captions.
const maxCaptionLength = 1024

// renderCaption executes the caption template. It returns fallback when no
// template is configured or rendering fails.
func (b *Bot) renderCaption(data CaptionData, fallback string) string {
	b.mu.RLock()
	tmpl := b.caption
	b.mu.RUnlock()
	if tmpl == nil {
		return fallback
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		b.logger.Warn("filebot: rendering caption template", "error", err)
		return fallback
	}
	out := strings.TrimSpace(sb.String())
	if r := []rune(out); len(r) > maxCaptionLength {
		out = string(r[:maxCaptionLength])
	}
	return out
}
