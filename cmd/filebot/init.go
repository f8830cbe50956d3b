package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/telegram"
)

// initAnswers collects what "filebot init" asks for.
type initAnswers struct {
	Token        string
	AdminID      string
	Password     string
	Mode         string
	WebhookURL   string
	DBChannel    string
	ShortenerKey string
	Storage      string
}

func (a initAnswers) validate() error {
	var errs []error
	if err := validateToken(a.Token); err != nil {
		errs = append(errs, err)
	}
	if err := validateChatID(a.AdminID); err != nil {
		errs = append(errs, fmt.Errorf("admin id: %w", err))
	}
	if a.DBChannel != "" {
		if err := validateChatID(a.DBChannel); err != nil {
			errs = append(errs, fmt.Errorf("db channel: %w", err))
		}
	}
	switch a.Mode {
	case telegram.ModePolling:
	case telegram.ModeWebhook:
		if !strings.HasPrefix(a.WebhookURL, "https://") {
			errs = append(errs, errors.New("webhook url must start with https://"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", a.Mode))
	}
	switch a.Storage {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", a.Storage))
	}
	return errors.Join(errs...)
}

func validateToken(s string) error {
	id, hash, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || id == "" || hash == "" {
		return errors.New("token must look like <bot_id>:<hash>")
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return errors.New("token must look like <bot_id>:<hash>")
	}
	return nil
}

func validateChatID(s string) error {
	if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
		return errors.New("must be a numeric Telegram id")
	}
	return nil
}

func initCmd() *cobra.Command {
	var (
		a              initAnswers
		dir            string
		force          bool
		nonInteractive bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create filebot.yaml and .env interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !nonInteractive {
				if err := askInit(&a); err != nil {
					return err
				}
			}
			if err := a.validate(); err != nil {
				return err
			}
			cfgPath, err := writeInitFiles(dir, a, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\nRun: filebot start --config %s\n",
				cfgPath, filepath.Join(dir, ".env"), cfgPath)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&dir, "dir", ".", "Directory to write filebot.yaml and .env into")
	f.BoolVar(&force, "force", false, "Overwrite existing files")
	f.BoolVar(&nonInteractive, "non-interactive", false, "Use flag values only, no prompts")
	f.StringVar(&a.Token, "token", "", "Bot token from @BotFather")
	f.StringVar(&a.AdminID, "admin-id", "", "Telegram user id of the owner")
	f.StringVar(&a.Password, "password", "", "Admin password (stored hashed)")
	f.StringVar(&a.Mode, "mode", telegram.ModePolling, "Update delivery: polling or webhook")
	f.StringVar(&a.WebhookURL, "webhook-url", "", "Public https URL for webhook mode")
	f.StringVar(&a.DBChannel, "db-channel", "", "First channel to search, e.g. -1001234567890")
	f.StringVar(&a.ShortenerKey, "shortener-key", "", "Link shortener API key")
	f.StringVar(&a.Storage, "storage", "sqlite", "Storage backend: memory or sqlite")
	return cmd
}

func askInit(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("From @BotFather").
				EchoMode(huh.EchoModePassword).
				Validate(validateToken).
				Value(&a.Token),
			huh.NewInput().
				Title("Owner Telegram id").
				Validate(validateChatID).
				Value(&a.AdminID),
			huh.NewInput().
				Title("Admin password").
				Description("Leave empty to disable the /admin password gate").
				EchoMode(huh.EchoModePassword).
				Value(&a.Password),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Update delivery").
				Options(
					huh.NewOption("Long polling", telegram.ModePolling),
					huh.NewOption("Webhook (needs the gateway behind https)", telegram.ModeWebhook),
				).
				Value(&a.Mode),
			huh.NewInput().
				Title("Webhook URL").
				Description("Only used in webhook mode").
				Value(&a.WebhookURL),
			huh.NewInput().
				Title("First DB channel id").
				Description("Optional, channels can be added later with /addchannel").
				Value(&a.DBChannel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Link shortener API key").
				Description("Optional").
				EchoMode(huh.EchoModePassword).
				Value(&a.ShortenerKey),
			huh.NewSelect[string]().
				Title("Storage").
				Options(
					huh.NewOption("SQLite (persistent)", "sqlite"),
					huh.NewOption("Memory (lost on restart)", "memory"),
				).
				Value(&a.Storage),
		),
	)
	return form.Run()
}

// writeInitFiles writes filebot.yaml referencing ${VARS} and a .env holding
// their values, both readable by the owner only.
func writeInitFiles(dir string, a initAnswers, force bool) (string, error) {
	cfgPath := filepath.Join(dir, "filebot.yaml")
	envPath := filepath.Join(dir, ".env")
	if !force {
		for _, p := range []string{cfgPath, envPath} {
			if _, err := os.Stat(p); err == nil {
				return "", fmt.Errorf("%s already exists (use --force to overwrite)", p)
			}
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	env := map[string]string{
		"BOT_TOKEN": strings.TrimSpace(a.Token),
		"ADMIN_ID":  strings.TrimSpace(a.AdminID),
	}
	bot := map[string]any{
		"token":    "${BOT_TOKEN}",
		"admin_id": "${ADMIN_ID}",
		"mode":     a.Mode,
	}
	if a.Password != "" {
		hash, err := security.HashPassword(a.Password)
		if err != nil {
			return "", err
		}
		env["ADMIN_PASSWORD_HASH"] = hash
		bot["admin_password_hash"] = "${ADMIN_PASSWORD_HASH}"
	}
	if a.Mode == telegram.ModeWebhook {
		secret, err := security.RandomToken(24)
		if err != nil {
			return "", err
		}
		env["WEBHOOK_SECRET"] = secret
		bot["webhook_url"] = a.WebhookURL
		bot["webhook_secret"] = "${WEBHOOK_SECRET}"
	}
	if a.DBChannel != "" {
		id, _ := strconv.ParseInt(strings.TrimSpace(a.DBChannel), 10, 64)
		bot["db_channels"] = []int64{id}
	}
	if a.ShortenerKey != "" {
		env["GPLINK_API_KEY"] = a.ShortenerKey
		bot["shortener"] = map[string]string{"api_key": "${GPLINK_API_KEY}"}
	}

	modules := map[string]any{
		"bot.filebot":  bot,
		"gateway.http": map[string]any{"bind": "0.0.0.0:8080"},
	}
	if a.Storage == "sqlite" {
		modules["store.sqlite"] = map[string]any{}
	}
	doc := struct {
		Version string         `yaml:"version"`
		Logging map[string]any `yaml:"logging"`
		Modules map[string]any `yaml:"modules"`
	}{
		Version: "1",
		Logging: map[string]any{"level": "info", "format": "text"},
		Modules: modules,
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(cfgPath, out, 0o600); err != nil {
		return "", err
	}
	if err := godotenv.Write(env, envPath); err != nil {
		return "", fmt.Errorf("writing %s: %w", envPath, err)
	}
	if err := os.Chmod(envPath, 0o600); err != nil {
		return "", err
	}
	return cfgPath, nil
}
