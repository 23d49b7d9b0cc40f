// Package config defines the daemon's typed, validated configuration. File
// parsing is a thin YAML loader (see SPEC_FULL.md §A.3) — the contract this
// package owns is the validated struct every other component is built from.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DaemonConfig is the complete, validated configuration for one repliguard
// process. Durations are expressed in seconds in the YAML file, mirroring
// the underlying tool's `*_secs`-suffixed settings (spec.md §4, §6); the one
// exception is standby_wait_timeout_minutes, which is in minutes.
type DaemonConfig struct {
	NodeID   int    `yaml:"node_id" validate:"required"`
	NodeName string `yaml:"node_name" validate:"required"`
	DSN      string `yaml:"dsn" validate:"required"`

	MonitorIntervalSecs            int `yaml:"monitor_interval_secs" validate:"min=1"`
	DegradedMonitoringTimeoutSecs  int `yaml:"degraded_monitoring_timeout_secs" validate:"min=1"`
	ReconnectAttempts              int `yaml:"reconnect_attempts" validate:"min=1"`
	ReconnectIntervalSecs          int `yaml:"reconnect_interval_secs" validate:"min=1"`
	StandbyWaitTimeoutMinutes      int `yaml:"standby_wait_timeout_minutes" validate:"min=0"`
	WitnessSyncIntervalSecs        int `yaml:"witness_sync_interval_secs" validate:"min=1"`

	PrimaryNotificationTimeoutSecs int  `yaml:"primary_notification_timeout_secs" validate:"min=1"`
	RepmgrdStandbyStartupTimeout   int  `yaml:"repmgrd_standby_startup_timeout_secs" validate:"min=1"`
	ElectionRerunIntervalSecs      int  `yaml:"election_rerun_interval_secs" validate:"min=1"`
	PromoteDelaySecs               int  `yaml:"promote_delay_secs" validate:"min=0"`

	PrimaryVisibilityConsensus     bool `yaml:"primary_visibility_consensus"`
	StandbyDisconnectOnFailover    bool `yaml:"standby_disconnect_on_failover"`
	SiblingDisconnectTimeoutSecs   int  `yaml:"sibling_nodes_disconnect_timeout_secs" validate:"min=0"`

	MonitoringHistoryEnabled bool `yaml:"monitoring_history_enabled"`
	CheckBrainSplit          bool `yaml:"check_brain_split"`

	SyncStandbyLagBytesThreshold int64 `yaml:"sync_standby_lag_bytes_threshold" validate:"min=0"`
	SyncStandbyGraceSecs         int   `yaml:"sync_standby_grace_secs" validate:"min=1"`

	DeviceCheckTimes   int `yaml:"device_check_times" validate:"min=1"`
	DeviceCheckTimeout int `yaml:"device_check_timeout_secs" validate:"min=1"`
	NetworkInterface   string `yaml:"network_interface"`
	DataDirectory      string `yaml:"data_directory" validate:"required"`

	VoteRequestTimeoutSecs int `yaml:"vote_request_timeout_secs" validate:"min=1"`

	PromoteCommand             string `yaml:"promote_command" validate:"required"`
	FollowCommand              string `yaml:"follow_command" validate:"required"`
	RejoinCommand              string `yaml:"rejoin_command"`
	FailoverValidationCommand  string `yaml:"failover_validation_command"`

	NotificationHookURL    string `yaml:"notification_hook_url"`
	NotificationHookSecret string `yaml:"notification_hook_secret"`

	PIDFile string `yaml:"pid_file"`

	ManualFailoverMode bool `yaml:"manual_failover_mode"`

	// MetricsListenAddr serves /metrics (Prometheus), /healthz and
	// /crosscheck (spec.md §6 CSV crosscheck wire format) for this node.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	// SplitBrainSurveyAddr is the rendezvous address SplitBrainGuard's
	// health survey binds to while this node is primary, and every node's
	// HealthRespondent dials otherwise. Operators repoint this at the
	// current primary's address across a SIGHUP reload after a promotion.
	SplitBrainSurveyAddr string `yaml:"split_brain_survey_addr"`
	SurveyTimeSecs       int    `yaml:"survey_time_secs" validate:"min=0"`

	// PeerTransport selects the ReplicationTransport backend peer.Client
	// uses: "tcp" (default, no external dependency) or "zmq".
	PeerTransport string `yaml:"peer_transport"`

	SSHUser           string `yaml:"ssh_user"`
	SSHPort           int    `yaml:"ssh_port"`
	SSHPrivateKeyPath string `yaml:"ssh_private_key_path"`
	SSHConnectTimeoutSecs int `yaml:"ssh_connect_timeout_secs" validate:"min=0"`

	// TreatInactiveAsConfigError resolves the Open Question in spec.md §9:
	// false (default) skips inactive candidates with a warning log line; true
	// logs an error and makes the local node lose the election round
	// whenever an inactive non-witness sibling is present. See SPEC_FULL.md
	// §D.1.
	TreatInactiveAsConfigError bool `yaml:"treat_inactive_as_config_error"`
}

// Default returns a safe, conservative configuration. Callers still need to
// fill in NodeID/NodeName/DSN/DataDirectory/PromoteCommand/FollowCommand.
func Default() DaemonConfig {
	return DaemonConfig{
		MonitorIntervalSecs:            2,
		DegradedMonitoringTimeoutSecs:  300,
		ReconnectAttempts:              6,
		ReconnectIntervalSecs:          10,
		StandbyWaitTimeoutMinutes:      2,
		WitnessSyncIntervalSecs:        15,
		PrimaryNotificationTimeoutSecs: 60,
		RepmgrdStandbyStartupTimeout:   60,
		ElectionRerunIntervalSecs:      15,
		PromoteDelaySecs:               0,
		PrimaryVisibilityConsensus:     false,
		StandbyDisconnectOnFailover:    false,
		SiblingDisconnectTimeoutSecs:   30,
		MonitoringHistoryEnabled:       true,
		CheckBrainSplit:                true,
		SyncStandbyLagBytesThreshold:   5 * 1024 * 1024,
		SyncStandbyGraceSecs:           30,
		DeviceCheckTimes:               3,
		DeviceCheckTimeout:             5,
		NetworkInterface:               "eth0",
		VoteRequestTimeoutSecs:         5,
		TreatInactiveAsConfigError:     false,
		MetricsListenAddr:              ":9187",
		SplitBrainSurveyAddr:           ":7799",
		SurveyTimeSecs:                 2,
		PeerTransport:                  "tcp",
		SSHUser:                        "postgres",
		SSHPort:                        22,
		SSHConnectTimeoutSecs:          5,
	}
}

// SurveyTime is the health-survey response window (SPEC_FULL.md §B).
func (c DaemonConfig) SurveyTime() time.Duration {
	return time.Duration(c.SurveyTimeSecs) * time.Second
}

// SSHConnectTimeout bounds the remote shell's connect phase.
func (c DaemonConfig) SSHConnectTimeout() time.Duration {
	return time.Duration(c.SSHConnectTimeoutSecs) * time.Second
}

var validate = validator.New()

// Validate checks the configuration, mirroring pkg/validation's pattern of
// a package-level singleton validator plus tag-driven struct checks.
func (c DaemonConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.DegradedMonitoringTimeoutSecs < c.MonitorIntervalSecs {
		return fmt.Errorf("degraded_monitoring_timeout_secs must be >= monitor_interval_secs")
	}
	return nil
}

func (c DaemonConfig) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSecs) * time.Second
}

func (c DaemonConfig) DegradedMonitoringTimeout() time.Duration {
	return time.Duration(c.DegradedMonitoringTimeoutSecs) * time.Second
}

func (c DaemonConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalSecs) * time.Second
}

func (c DaemonConfig) StandbyWaitTimeout() time.Duration {
	return time.Duration(c.StandbyWaitTimeoutMinutes) * time.Minute
}

func (c DaemonConfig) WitnessSyncInterval() time.Duration {
	return time.Duration(c.WitnessSyncIntervalSecs) * time.Second
}

func (c DaemonConfig) PrimaryNotificationTimeout() time.Duration {
	return time.Duration(c.PrimaryNotificationTimeoutSecs) * time.Second
}

func (c DaemonConfig) StandbyStartupTimeout() time.Duration {
	return time.Duration(c.RepmgrdStandbyStartupTimeout) * time.Second
}

func (c DaemonConfig) ElectionRerunInterval() time.Duration {
	return time.Duration(c.ElectionRerunIntervalSecs) * time.Second
}

func (c DaemonConfig) PromoteDelay() time.Duration {
	return time.Duration(c.PromoteDelaySecs) * time.Second
}

func (c DaemonConfig) SiblingDisconnectTimeout() time.Duration {
	return time.Duration(c.SiblingDisconnectTimeoutSecs) * time.Second
}

// SyncStandbyGrace bounds how long pg_stat_replication may be empty of the
// configured sync standby before the primary loop degrades it to async.
func (c DaemonConfig) SyncStandbyGrace() time.Duration {
	return time.Duration(c.SyncStandbyGraceSecs) * time.Second
}

func (c DaemonConfig) DeviceCheckTimeoutDuration() time.Duration {
	return time.Duration(c.DeviceCheckTimeout) * time.Second
}

func (c DaemonConfig) VoteRequestTimeout() time.Duration {
	return time.Duration(c.VoteRequestTimeoutSecs) * time.Second
}

// Load reads and validates a DaemonConfig from a YAML file.
func Load(path string) (DaemonConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
