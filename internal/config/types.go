package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Password string       `mapstructure:"password"`
	Key      string       `mapstructure:"key"` // raw 32-byte key, base64 or hex; bypasses password derivation
	Write    bool         `mapstructure:"write"`
	Verify   bool         `mapstructure:"verify"`
	Global   GlobalConfig `mapstructure:"global"`
	Files    FilesConfig  `mapstructure:"files"`
	Remote   RemoteConfig `mapstructure:"remote"`

	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LockFile         string        `mapstructure:"lock_file"`
	LockWait         time.Duration `mapstructure:"lock_wait"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	MaxParallelism   int           `mapstructure:"max_parallelism"`
}

type FilesConfig struct {
	DecryptedName  string `mapstructure:"decrypted_name"`
	EncryptedName  string `mapstructure:"encrypted_name"`
	BoundaryMarker string `mapstructure:"boundary_marker"`
}

type RemoteConfig struct {
	Backend      string        `mapstructure:"backend"` // local, s3
	Prefix       string        `mapstructure:"prefix"`
	Project      string        `mapstructure:"project"` // defaults to the artifact's directory name
	Compression  string        `mapstructure:"compression"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	KeepLast     int           `mapstructure:"keep_last"` // copies kept per file after a push; 0 keeps all
	Local        LocalStore    `mapstructure:"local"`
	S3           S3Store       `mapstructure:"s3"`
}

type LocalStore struct {
	Path string `mapstructure:"path"`
}

type S3Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	SessionToken    string `mapstructure:"session_token"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

// NotificationsConfig lists targets told about remote pushes and pulls.
type NotificationsConfig struct {
	Webhooks   []WebhookConfig    `mapstructure:"webhooks"`
	Mattermost []MattermostConfig `mapstructure:"mattermost"`
	Matrix     []MatrixConfig     `mapstructure:"matrix"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url"`
	AccessToken string `mapstructure:"access_token"`
	RoomID      string `mapstructure:"room_id"`
}
