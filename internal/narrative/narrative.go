// ABOUTME: Narrator factory selecting rules, OpenAI, or Gemini, optionally behind a Redis cache.
// ABOUTME: Returns a close function that releases every client it opened.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/medtrack/internal/report"
	"github.com/rs/zerolog"
)

// Provider names accepted by New.
const (
	ProviderRules  = "rules"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Options selects and configures a narrator.
type Options struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// RedisAddr enables the cache when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// New builds the configured narrator. When Redis is configured but
// unreachable the narrator runs uncached and a warning is logged.
func New(ctx context.Context, opts Options, log zerolog.Logger) (report.Narrator, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	var n report.Narrator
	switch strings.ToLower(opts.Provider) {
	case "", ProviderRules:
		n = Rules{}
	case ProviderOpenAI:
		o, err := NewOpenAI(opts.APIKey, opts.Model, opts.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		n = o
	case ProviderGemini:
		g, err := NewGemini(ctx, opts.APIKey, opts.Model)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, g.Close)
		n = g
	default:
		return nil, nil, fmt.Errorf("unknown narrative provider %q (use rules, openai, or gemini)", opts.Provider)
	}

	if opts.RedisAddr != "" {
		client, err := DialRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		if err != nil {
			log.Warn().Err(err).Str("addr", opts.RedisAddr).Msg("narrative cache disabled")
		} else {
			closers = append(closers, client.Close)
			n = NewCached(n, client, opts.CacheTTL, log)
		}
	}

	log.Debug().Str("provider", providerName(opts.Provider)).Bool("cached", isCached(n)).Msg("narrator ready")
	return n, closeAll, nil
}

func providerName(p string) string {
	if p == "" {
		return ProviderRules
	}
	return strings.ToLower(p)
}

func isCached(n report.Narrator) bool {
	_, ok := n.(*Cached)
	return ok
}
