/* Copyright (c) 2025 A. Karpov
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	TZ       string
	HTTPAddr string

	// DBDSN empty means the in-memory store; handy for local runs and tests.
	DBDSN string

	ProjectKey string

	GitLabBaseURL   string
	GitLabToken     string
	GitLabProjectID string
	GitLabGroupID   string

	TelegramToken   string
	TelegramChatIDs []int64

	RefreshCron string
	DigestCron  string

	ForecastWeeks int
	HTTPTimeout   time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoi(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func dur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func parseInt64s(csv string) []int64 {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func Load() Config {
	cfg := Config{
		AppEnv:   getenv("APP_ENV", "dev"),
		TZ:       getenv("APP_TZ", "Europe/Berlin"),
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBDSN: getenv("DB_DSN", ""),

		ProjectKey: getenv("PROJECT_KEY", "default"),

		GitLabBaseURL:   getenv("GITLAB_BASE_URL", "https://gitlab.com"),
		GitLabToken:     getenv("GITLAB_TOKEN", ""),
		GitLabProjectID: getenv("GITLAB_PROJECT_ID", ""),
		GitLabGroupID:   getenv("GITLAB_GROUP_ID", ""),

		TelegramToken:   getenv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs: parseInt64s(getenv("TELEGRAM_CHAT_IDS", "")),

		RefreshCron: getenv("REFRESH_CRON", "*/30 * * * *"),
		DigestCron:  getenv("DIGEST_CRON", "0 9 * * MON"),

		ForecastWeeks: atoi("FORECAST_WEEKS", 12),
		HTTPTimeout:   dur("HTTP_TIMEOUT", 15*time.Second),
	}

	if loc, err := time.LoadLocation(cfg.TZ); err == nil {
		time.Local = loc
	} else {
		log.Printf("warning: cannot load TZ %s: %v", cfg.TZ, err)
	}
	return cfg
}
