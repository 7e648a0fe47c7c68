package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatapp/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile is the per-profile profile.toml.
type Profile struct {
	Backend  Backend  `toml:"backend"`
	Retry    Retry    `toml:"retry"`
	Limits   Limits   `toml:"limits"`
	Realtime Realtime `toml:"realtime"`
	Auth     Auth     `toml:"auth"`
}

// Backend names the database and collections the daemon serves.
type Backend struct {
	DatabaseID string `toml:"database_id"`
	Users      string `toml:"users_collection"`
	Chats      string `toml:"chats_collection"`
	Messages   string `toml:"messages_collection"`
	// Denied collections are registered without read or write access.
	Denied []string `toml:"denied"`
}

// Retry is the default policy for backend calls.
type Retry struct {
	Attempts  int      `toml:"attempts"`
	BaseDelay Duration `toml:"base_delay"`
}

// Limits caps list sizes and the detached job queue.
type Limits struct {
	Messages int `toml:"messages"`
	Users    int `toml:"users"`
	Chats    int `toml:"chats"`
	JobQueue int `toml:"job_queue"`
}

// Realtime configures the websocket bridge. An empty Listen disables it.
type Realtime struct {
	Listen string `toml:"listen"`
}

// Auth configures session tokens for the identity probe.
type Auth struct {
	Secret string   `toml:"secret"`
	UserID string   `toml:"user_id"`
	TTL    Duration `toml:"ttl"`
}

// Duration is a time.Duration written as a string such as "1s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns the profile used when profile.toml is absent.
func Defaults() Profile {
	return Profile{
		Backend: Backend{
			DatabaseID: "chat",
			Users:      "users",
			Chats:      "chats",
			Messages:   "messages",
		},
		Retry:    Retry{Attempts: 3, BaseDelay: Duration{time.Second}},
		Limits:   Limits{Messages: 50, Users: 100, Chats: 50, JobQueue: 64},
		Realtime: Realtime{Listen: "127.0.0.1:8787"},
		Auth:     Auth{TTL: Duration{24 * time.Hour}},
	}
}

// Validate rejects settings the daemon cannot run with.
func (p *Profile) Validate() error {
	switch {
	case p.Backend.DatabaseID == "":
		return errors.New("backend.database_id is required")
	case p.Backend.Users == "" || p.Backend.Chats == "" || p.Backend.Messages == "":
		return errors.New("backend collection IDs must not be empty")
	case p.Retry.Attempts < 1:
		return fmt.Errorf("retry.attempts = %d: must be at least 1", p.Retry.Attempts)
	case p.Retry.BaseDelay.Duration < 0:
		return fmt.Errorf("retry.base_delay = %s: must not be negative", p.Retry.BaseDelay)
	}
	return nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return write(path, cfg)
}

// LoadProfile reads profile.toml over Defaults. A missing file yields the defaults.
func LoadProfile(path string) (*Profile, error) {
	p := Defaults()
	if _, err := toml.DecodeFile(path, &p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return &p, nil
}

// SaveProfile writes p to path.
func SaveProfile(path string, p *Profile) error {
	return write(path, p)
}

func write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
