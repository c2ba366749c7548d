/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

const (
	StoreXLSX     = "xlsx"
	StorePostgres = "postgres"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	TZ       string `envconfig:"APP_TZ" default:"UTC"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`

	JiraBaseURL  string        `envconfig:"JIRA_BASE_URL"`
	JiraEmail    string        `envconfig:"JIRA_EMAIL"`
	JiraAPIToken string        `envconfig:"JIRA_API_TOKEN"`
	JiraPAT      string        `envconfig:"JIRA_PAT"`
	JiraBoardID  int64         `envconfig:"JIRA_BOARD_ID"`
	JiraPageSize int           `envconfig:"JIRA_PAGE_SIZE" default:"100"`
	SprintIDs    []int64       `envconfig:"SPRINT_IDS"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	TrackedStatuses   []string `envconfig:"STATUSES_TO_TRACK"`
	StatusesFile      string   `envconfig:"STATUSES_FILE"`
	ExcludedIssueType string   `envconfig:"EXCLUDED_ISSUE_TYPE" default:"Problem"`

	Store         string `envconfig:"STORE" default:"xlsx"`
	ExcelFile     string `envconfig:"EXCEL_FILE" default:"jira-status-periods.xlsx"`
	DBDSN         string `envconfig:"DB_DSN"`
	MigrationsURL string `envconfig:"MIGRATIONS_URL" default:"file://migrations"`
	RedisURL      string `envconfig:"REDIS_URL"`

	ExportCron string `envconfig:"CRON_SPEC" default:"0 18 * * MON-FRI"`

	TelegramToken         string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramWebhookSecret string  `envconfig:"TELEGRAM_WEBHOOK_SECRET"`
	TelegramChatIDs       []int64 `envconfig:"TELEGRAM_CHAT_IDS"`

	OpenAIKey     string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
	OpenAITimeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"20s"`
}

// Load reads configuration from the environment. In dev the given env file (or .env) is loaded first;
// variables already set in the process win.
func Load(envFile string) (Config, error) {
	if env := os.Getenv("APP_ENV"); env == "" || env == "dev" {
		if envFile == "" {
			envFile = ".env"
		}
		_ = godotenv.Load(envFile)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.StatusesFile != "" {
		sf, err := LoadStatusesFile(cfg.StatusesFile)
		if err != nil {
			return Config{}, err
		}
		if len(sf.Statuses) > 0 {
			cfg.TrackedStatuses = sf.Statuses
		}
		if sf.ExcludedIssueType != "" {
			cfg.ExcludedIssueType = sf.ExcludedIssueType
		}
	}
	cfg.TrackedStatuses = trimAll(cfg.TrackedStatuses)

	switch cfg.Store {
	case StoreXLSX, StorePostgres:
	default:
		return Config{}, fmt.Errorf("unknown STORE %q (want %s or %s)", cfg.Store, StoreXLSX, StorePostgres)
	}
	if cfg.Store == StorePostgres && cfg.DBDSN == "" {
		return Config{}, errors.New("STORE=postgres requires DB_DSN")
	}

	if loc, err := time.LoadLocation(cfg.TZ); err == nil {
		time.Local = loc
	} else {
		log.Warn().Err(err).Str("tz", cfg.TZ).Msg("cannot load timezone")
	}
	return cfg, nil
}

// ValidateJira reports whether the Jira connection settings are usable.
func (c Config) ValidateJira() error {
	if strings.TrimSpace(c.JiraBaseURL) == "" {
		return errors.New("JIRA_BASE_URL is not set")
	}
	if c.JiraPAT == "" && (c.JiraEmail == "" || c.JiraAPIToken == "") {
		return errors.New("set JIRA_PAT or both JIRA_EMAIL and JIRA_API_TOKEN")
	}
	return nil
}

// Masked renders the configuration for display with secrets shortened.
func (c Config) Masked() []string {
	return []string{
		"Env: " + c.AppEnv,
		"Jira URL: " + c.JiraBaseURL,
		"Jira email: " + c.JiraEmail,
		"Jira API token: " + mask(c.JiraAPIToken),
		"Jira PAT: " + mask(c.JiraPAT),
		fmt.Sprintf("Board: %d", c.JiraBoardID),
		fmt.Sprintf("Sprint IDs: %v", c.SprintIDs),
		"Tracked statuses: " + strings.Join(c.TrackedStatuses, ", "),
		"Excluded issue type: " + c.ExcludedIssueType,
		"Store: " + c.Store,
		"Excel file: " + c.ExcelFile,
		"DB DSN: " + mask(c.DBDSN),
		"Telegram token: " + mask(c.TelegramToken),
		"OpenAI key: " + mask(c.OpenAIKey),
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "****"
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
