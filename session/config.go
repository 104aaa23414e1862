package session

import "time"

// Config holds the tuning knobs shared across protocols, generalized
// from the teacher's zmodem.Config (zmodem/session.go).
type Config struct {
	// Timeout is the per-read wait, in tenths of a second, matching the
	// teacher's Config.Timeout convention (and the original protocols'
	// own timeout units).
	Timeout int

	// MaxRetries bounds how many times an engine retries a single
	// header/block before giving up. Resolves spec.md §9's Zmodem
	// retry-budget Open Question; default 10.
	MaxRetries int

	// Debug surfaces jermit's compile-time DEBUG switch as a runtime
	// logger level instead.
	Debug bool

	// ProgressInterval is carried in the config for callers; no part of
	// this module reads it, and Subscribe() snapshots are not rate-limited.
	ProgressInterval time.Duration
}

// DefaultConfig matches the teacher's zmodem.DefaultConfig() defaults,
// generalized with MaxRetries and Debug.
func DefaultConfig() *Config {
	return &Config{
		Timeout:          100, // 10 seconds
		MaxRetries:       10,
		ProgressInterval: 200 * time.Millisecond,
	}
}

// Option configures a Session at construction time, generalizing the
// teacher's zmodem.Option/WithConfig/WithCallbacks/WithContext pattern.
type Option func(*Session)

// WithConfig overrides the default Config.
func WithConfig(cfg *Config) Option {
	return func(s *Session) { s.config = cfg }
}

// WithLogger overrides the default logger.
func WithLogger(l Logger) Option {
	return func(s *Session) { s.logger = l }
}
