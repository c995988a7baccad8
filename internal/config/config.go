package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthSecret string

	AdminUser     string
	AdminPassword string // plaintext seed; hashed on first boot

	CORSOrigins []string

	// LateGraceSeconds pads the exam time limit before a submission is
	// rejected as late, absorbing clock skew and the network round-trip.
	LateGraceSeconds int64

	LogLevel  string
	LogFormat string
}

// FromViper reads the merged flag/env/file view. Env vars use the
// STAFFSTUDY_ prefix with dashes mapped to underscores.
func FromViper(v *viper.Viper) Config {
	return Config{
		HTTPAddr:         strOr(v.GetString("addr"), ":8080"),
		DBDriver:         strOr(v.GetString("db-driver"), "sqlite"),
		DBDSN:            v.GetString("db-dsn"),
		AuthSecret:       strOr(v.GetString("auth-secret"), "supersecret-dev-key"),
		AdminUser:        strOr(v.GetString("admin-user"), "admin"),
		AdminPassword:    v.GetString("admin-password"),
		CORSOrigins:      csv(strOr(v.GetString("cors-origins"), "http://localhost:3000")),
		LateGraceSeconds: v.GetInt64("late-grace-seconds"),
		LogLevel:         strOr(v.GetString("log-level"), "info"),
		LogFormat:        strOr(v.GetString("log-format"), "text"),
	}
}

func strOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
