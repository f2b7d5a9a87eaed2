package config

import (
	"time"

	"github.com/spf13/pflag"
)

// BindFlags registers the overridable settings on a command's flag set.
// Defaults are left empty so that only explicitly set flags override
// file and environment values.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "", "address the gateway listens on")
	fs.String("database-url", "", "gateway store DSN")
	fs.String("core-database-url", "", "read-only core banking DSN")
	fs.String("api-url", "", "customer API base URL")
	fs.String("login", "", "customer API login")
	fs.Duration("http-timeout", 0, "timeout of each outbound call")
	fs.Duration("token-renew-interval", 0, "period of the token renewal task")
	fs.Duration("sync-interval", 0, "period of the customer sync task")
	fs.String("candidates-file", "", "JSON file with candidate customers")
	fs.String("amqp-url", "", "AMQP broker for sync events")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-env", "", "dev or prod")
}

func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"http-addr":         &c.HTTPAddr,
		"database-url":      &c.DatabaseURL,
		"core-database-url": &c.CoreDatabaseURL,
		"api-url":           &c.APIURL,
		"login":             &c.Login,
		"candidates-file":   &c.CandidatesFile,
		"amqp-url":          &c.AMQPURL,
		"log-level":         &c.LogLevel,
		"log-env":           &c.LogEnv,
	}
	for name, dst := range strs {
		if f := fs.Lookup(name); f == nil || !f.Changed {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	durations := map[string]*time.Duration{
		"http-timeout":         &c.HTTPTimeout,
		"token-renew-interval": &c.TokenRenewInterval,
		"sync-interval":        &c.SyncInterval,
	}
	for name, dst := range durations {
		if f := fs.Lookup(name); f == nil || !f.Changed {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}
