package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds all server configuration, read from ATLANTAGUI_* environment
// variables.
type Settings struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8740"`
	DataPath   string `envconfig:"DATA_PATH" default:"/app/data"`
	LogPath    string `envconfig:"LOG_PATH" default:""`

	// Workspace settings
	WorkspaceRoot string `envconfig:"WORKSPACE_ROOT" default:"/workspace"`
	RootsFile     string `envconfig:"ROOTS_FILE" default:""`

	// Terminal session settings
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatTimeout  time.Duration `envconfig:"HEARTBEAT_TIMEOUT" default:"70s"`
	PersistentIdle    time.Duration `envconfig:"PERSISTENT_IDLE_TIMEOUT" default:"12h"`
	EphemeralIdle     time.Duration `envconfig:"EPHEMERAL_IDLE_TIMEOUT" default:"5m"`
	KillGrace         time.Duration `envconfig:"KILL_GRACE" default:"3s"`
	MaxSessions       int           `envconfig:"MAX_SESSIONS" default:"32"`
	Shell             string        `envconfig:"SHELL_OVERRIDE" default:""`

	// ATPG job settings
	AtpgBinary     string `envconfig:"ATPG_BINARY" default:"atalanta"`
	JobHistoryDays int    `envconfig:"JOB_HISTORY_DAYS" default:"30"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("ATLANTAGUI", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
