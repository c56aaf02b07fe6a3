package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"peerquiz/internal/domain"
)

type Config struct {
	Server struct {
		Bind string `yaml:"bind"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	HighScores struct {
		Limit int `yaml:"limit"`
	} `yaml:"highscores"`
	Game struct {
		HeartbeatInterval string            `yaml:"heartbeat_interval"`
		PeerTimeout       string            `yaml:"peer_timeout"`
		PostRoundDelay    string            `yaml:"post_round_delay"`
		BaseScore         int               `yaml:"base_score"`
		MaxTimeBonus      int               `yaml:"max_time_bonus"`
		Durations         map[string]string `yaml:"durations"`
	} `yaml:"game"`
}

// Load reads YAML config from path. A missing file yields the zero config,
// so every setting falls back to its default.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty/invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Rules builds the game rules from config over the reference defaults.
func (c Config) Rules() domain.Rules {
	rules := domain.DefaultRules()
	if c.Game.BaseScore > 0 {
		rules.BaseScore = c.Game.BaseScore
	}
	if c.Game.MaxTimeBonus > 0 {
		rules.MaxTimeBonus = c.Game.MaxTimeBonus
	}
	rules.PostRoundDelay = Duration(c.Game.PostRoundDelay, rules.PostRoundDelay)
	for name, raw := range c.Game.Durations {
		d := domain.Difficulty(name)
		if !d.Valid() {
			continue
		}
		rules.Durations[d] = Duration(raw, rules.Durations[d])
	}
	return rules
}

// Heartbeat returns the liveness ping interval.
func (c Config) Heartbeat() time.Duration {
	return Duration(c.Game.HeartbeatInterval, 5*time.Second)
}

// PeerTimeout returns the silence threshold for evicting a participant.
func (c Config) PeerTimeout() time.Duration {
	return Duration(c.Game.PeerTimeout, 15*time.Second)
}
