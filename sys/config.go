package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment keys
const (
	EnvDiscordToken      = "DISCORD_TOKEN"
	EnvGuildID           = "GUILD_ID"
	EnvDatabasePath      = "DATABASE_PATH"
	EnvOwnerIDs          = "OWNER_IDS"
	EnvSilent            = "SILENT"
	EnvIdleTimeout       = "VOICE_IDLE_TIMEOUT"
	EnvBufferSeconds     = "AUDIO_BUFFER_SECONDS"
	EnvPrebufferSeconds  = "AUDIO_PREBUFFER_SECONDS"
	EnvMaxPlaylistTracks = "MAX_PLAYLIST_TRACKS"
)

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	OwnerIDs     []string
	Silent       bool

	// Playback tuning
	IdleTimeout       time.Duration
	BufferSeconds     int
	PrebufferSeconds  int
	MaxPlaylistTracks int
}

var GlobalConfig *Config

// Validate ensures the configuration is valid and meets requirements.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf(MsgConfigInvalidGuildID)
	}
	return nil
}

// IsOwner reports whether the user ID is listed in OWNER_IDS. An empty
// list leaves owner-gated operations open to guild admins.
func (c *Config) IsOwner(id string) bool {
	for _, o := range c.OwnerIDs {
		if o == id {
			return true
		}
	}
	return false
}

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	token := os.Getenv(EnvDiscordToken)
	dbPath := os.Getenv(EnvDatabasePath)
	if dbPath == "" {
		dbPath = filepath.Join(".", GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv(EnvSilent))

	ownerIDsStr := os.Getenv(EnvOwnerIDs)
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:        token,
		GuildID:      os.Getenv(EnvGuildID),
		DatabasePath: dbPath,
		OwnerIDs:     ownerIDs,
		Silent:       silent,
	}

	idleSecs, _ := strconv.Atoi(os.Getenv(EnvIdleTimeout))
	if idleSecs == 0 {
		idleSecs = 120
	}
	cfg.IdleTimeout = time.Duration(idleSecs) * time.Second

	cfg.BufferSeconds, _ = strconv.Atoi(os.Getenv(EnvBufferSeconds))
	if cfg.BufferSeconds == 0 {
		cfg.BufferSeconds = 5
	}
	cfg.PrebufferSeconds, _ = strconv.Atoi(os.Getenv(EnvPrebufferSeconds))
	if cfg.PrebufferSeconds == 0 {
		cfg.PrebufferSeconds = 2
	}
	cfg.MaxPlaylistTracks, _ = strconv.Atoi(os.Getenv(EnvMaxPlaylistTracks))
	if cfg.MaxPlaylistTracks == 0 {
		cfg.MaxPlaylistTracks = 500
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg

	// The partially filled config is still returned so startup can log
	// what it has before bailing.
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "kanade"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
