package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	LLM        LLM        `yaml:"llm"`
	Voice      Voice      `yaml:"voice"`
	Footage    Footage    `yaml:"footage"`
	Compositor Compositor `yaml:"compositor"`
	Prayer     Prayer     `yaml:"prayer"`
	Assembler  Assembler  `yaml:"assembler"`
	Publishing Publishing `yaml:"publishing"`
	Policy     Policy     `yaml:"policy"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type LLM struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Voice struct {
	VoiceID   string  `yaml:"voice_id"`
	ModelID   string  `yaml:"model_id"`
	Speed     float64 `yaml:"speed"`
	APIKeyEnv string  `yaml:"api_key_env"`
}

type Footage struct {
	PrimarySource    string   `yaml:"primary_source"`
	FallbackSource   string   `yaml:"fallback_source"`
	Orientation      string   `yaml:"orientation"`
	MinClips         int      `yaml:"min_clips"`
	MaxClips         int      `yaml:"max_clips"`
	PexelsKeyEnv     string   `yaml:"pexels_key_env"`
	PixabayKeyEnv    string   `yaml:"pixabay_key_env"`
	BroadenedQueries []string `yaml:"broadened_queries"`
}

type Compositor struct {
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	FontFamily     string `yaml:"font_family"`
	VerseFontSize  int    `yaml:"verse_font_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Prayer struct {
	MinWords    int `yaml:"min_words"`
	MaxWords    int `yaml:"max_words"`
	TargetWords int `yaml:"target_words"`
	MaxRetries  int `yaml:"max_retries"`
}

type Assembler struct {
	MaxRetries         int     `yaml:"max_retries"`
	BackoffBaseSeconds int     `yaml:"backoff_base_seconds"`
	MinAudioSeconds    float64 `yaml:"min_audio_seconds"`
	MaxAudioSeconds    float64 `yaml:"max_audio_seconds"`
}

type Publishing struct {
	MinHoursBetweenPosts      int      `yaml:"min_hours_between_posts"`
	MaxPostsPerDay            int      `yaml:"max_posts_per_day"`
	ApprovalThreshold         int      `yaml:"approval_threshold"`
	MaxConsecutiveFailures    int      `yaml:"max_consecutive_failures"`
	AutoPublishAfterThreshold bool     `yaml:"auto_publish_after_threshold"`
	Hashtags                  []string `yaml:"hashtags"`
	MaxHashtags               int      `yaml:"max_hashtags"`
	PrivacyLevel              string   `yaml:"privacy_level"`
	TokenEnv                  string   `yaml:"token_env"`
}

// BlockedPhrase is one entry of the data-driven language-policy table.
// Kind must be one of the policy package's violation kinds.
type BlockedPhrase struct {
	Phrase string `yaml:"phrase"`
	Kind   string `yaml:"kind"`
}

type Policy struct {
	BlockedPhrases []BlockedPhrase `yaml:"blocked_phrases"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for prayloop.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "prayloop")
}

// DataDir returns the XDG data directory for prayloop.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "prayloop")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/prayloop/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'prayloop init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		LLM: LLM{
			Provider:    "openai",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   500,
		},
		Voice: Voice{
			VoiceID:   "EXAVITQu4vr4xnSDxMaL",
			ModelID:   "eleven_multilingual_v2",
			Speed:     0.95,
			APIKeyEnv: "ELEVENLABS_API_KEY",
		},
		Footage: Footage{
			PrimarySource:  "pexels",
			FallbackSource: "pixabay",
			Orientation:    "portrait",
			MinClips:       2,
			MaxClips:       3,
			PexelsKeyEnv:   "PEXELS_API_KEY",
			PixabayKeyEnv:  "PIXABAY_API_KEY",
			BroadenedQueries: []string{
				"calm nature", "sunrise sky", "peaceful landscape",
			},
		},
		Compositor: Compositor{
			Width:          1080,
			Height:         1920,
			FontFamily:     "Georgia",
			VerseFontSize:  48,
			TimeoutSeconds: 300,
		},
		Prayer: Prayer{
			MinWords:    130,
			MaxWords:    170,
			TargetWords: 150,
			MaxRetries:  2,
		},
		Assembler: Assembler{
			MaxRetries:         2,
			BackoffBaseSeconds: 2,
			MinAudioSeconds:    55,
			MaxAudioSeconds:    75,
		},
		Publishing: Publishing{
			MinHoursBetweenPosts:   4,
			MaxPostsPerDay:         1,
			ApprovalThreshold:      10,
			MaxConsecutiveFailures: 3,
			Hashtags:               []string{"#faith", "#prayer", "#ChristianTikTok"},
			MaxHashtags:            5,
			PrivacyLevel:           "SELF_ONLY",
			TokenEnv:               "TIKTOK_ACCESS_TOKEN",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// MinInterval returns the minimum gap between published posts as a Duration.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.Publishing.MinHoursBetweenPosts) * time.Hour
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
