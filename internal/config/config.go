package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds the conversion host settings.
type Config struct {
	WorkDir        string `mapstructure:"work_dir"`
	LogFormat      string `mapstructure:"log_format"`
	LogLevel       string `mapstructure:"log_level"`
	LogFile        string `mapstructure:"log_file"`
	LogMaxSizeMB   int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups  int    `mapstructure:"log_max_backups"`
	DryRun         bool   `mapstructure:"dry_run"`
	BootStartValue int    `mapstructure:"boot_start_value"`
	DriverManifest string `mapstructure:"driver_manifest"`
	MinFreeMB      int    `mapstructure:"min_free_mb"`
	GuestRoot      string `mapstructure:"guest_root"`

	Audit   AuditConfig   `mapstructure:"audit"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// AuditConfig controls the tamper-evident edit trail.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
}

// ArchiveConfig controls off-host archival of pre-edit hive copies.
// Provider is "" (disabled), "local", or "s3".
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalPath string `mapstructure:"local_path"`

	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
}

func Default() *Config {
	return &Config{
		WorkDir:        filepath.Join(os.TempDir(), "virtshift"),
		LogFormat:      "text",
		LogLevel:       "info",
		LogMaxSizeMB:   20,
		LogMaxBackups:  3,
		BootStartValue: 0,
		MinFreeMB:      1024,
		Audit: AuditConfig{
			Enabled:    true,
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("virtshift")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("VIRTSHIFT")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GetDataDir returns the directory for audit trails and reports.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Virtshift")
	default:
		return "/var/lib/virtshift"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Virtshift")
	default:
		return "/etc/virtshift"
	}
}
