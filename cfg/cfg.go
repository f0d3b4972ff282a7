package cfg

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"superpaste/svc/util"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	util.Wipe(s.value)
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Environment       string
	LogLevel          string
	Backend           string
	HTTPTimeout       time.Duration
	AsyncWorkers      int
	HastebinToken     Secret
	PasteEEToken      Secret
	TokensFromSecrets bool
	URLs              BaseURLs
	MystbinExpiry     time.Duration
	MystbinPassword   Secret
	Emu               EmuCfg
}

// BaseURLs override service endpoints. Empty means the public service.
type BaseURLs struct {
	Generic  string
	HstSh    string
	Skyra    string
	Hastebin string
	Mystbin  string
	PasteEE  string
}

type EmuCfg struct {
	Port           string
	CacheSize      int
	RateRPM        int
	RateBurst      int
	ContextTimeout time.Duration
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	c.Environment = getEnv("ENVIRONMENT", "production")
	c.LogLevel = getEnv("LOG_LEVEL", "warn")
	c.Backend = getEnv("BACKEND", "hst.sh")
	var err error
	c.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	c.AsyncWorkers, err = getInt("ASYNC_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	c.HastebinToken = NewSecret(getEnv("HASTEBIN_TOKEN", ""))
	c.PasteEEToken = NewSecret(getEnv("PASTEEE_TOKEN", ""))
	c.TokensFromSecrets = getBool("TOKENS_FROM_SECRETS")
	c.URLs = BaseURLs{
		Generic:  getEnv("GENERIC_URL", ""),
		HstSh:    getEnv("HSTSH_URL", ""),
		Skyra:    getEnv("SKYRA_URL", ""),
		Hastebin: getEnv("HASTEBIN_URL", ""),
		Mystbin:  getEnv("MYSTBIN_URL", ""),
		PasteEE:  getEnv("PASTEEE_URL", ""),
	}
	c.MystbinExpiry, err = getDuration("MYSTBIN_EXPIRY", 0)
	if err != nil {
		return nil, err
	}
	c.MystbinPassword = NewSecret(getEnv("MYSTBIN_PASSWORD", ""))

	c.Emu.Port = getEnv("EMU_PORT", "8089")
	c.Emu.CacheSize, err = getInt("EMU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	c.Emu.RateRPM, err = getInt("EMU_RATE_RPM", 0)
	if err != nil {
		return nil, err
	}
	c.Emu.RateBurst, err = getInt("EMU_RATE_BURST", 10)
	if err != nil {
		return nil, err
	}
	c.Emu.ContextTimeout, err = getDuration("EMU_CONTEXT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	return c, nil
}
func Validate(c *Cfg) error {
	if c.Backend == "" {
		return errors.New("BACKEND is required")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be positive")
	}
	if c.AsyncWorkers <= 0 || c.AsyncWorkers > 256 {
		return errors.New("ASYNC_WORKERS must be between 1 and 256")
	}
	for name, raw := range map[string]string{
		"GENERIC_URL":  c.URLs.Generic,
		"HSTSH_URL":    c.URLs.HstSh,
		"SKYRA_URL":    c.URLs.Skyra,
		"HASTEBIN_URL": c.URLs.Hastebin,
		"MYSTBIN_URL":  c.URLs.Mystbin,
		"PASTEEE_URL":  c.URLs.PasteEE,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
		}
	}
	if c.MystbinExpiry < 0 {
		return errors.New("MYSTBIN_EXPIRY cannot be negative")
	}
	if _, err := strconv.Atoi(c.Emu.Port); err != nil {
		return errors.New("EMU_PORT must be a number")
	}
	if c.Emu.CacheSize <= 0 || c.Emu.CacheSize > 100000 {
		return errors.New("EMU_CACHE_SIZE must be between 1 and 100000")
	}
	if c.Emu.RateRPM < 0 {
		return errors.New("EMU_RATE_RPM cannot be negative")
	}
	if c.Emu.RateRPM > 0 && c.Emu.RateBurst <= 0 {
		return errors.New("EMU_RATE_BURST must be positive when EMU_RATE_RPM is set")
	}
	if c.Emu.ContextTimeout <= 0 {
		return errors.New("EMU_CONTEXT_TIMEOUT must be positive")
	}
	return nil
}
func (c *Cfg) Wipe() {
	c.HastebinToken.Wipe()
	c.PasteEEToken.Wipe()
	c.MystbinPassword.Wipe()
}
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getBool(key string) bool {
	return strings.ToLower(getEnv(key, "false")) == "true"
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
