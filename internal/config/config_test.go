package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Enabled:     true,
			UDPPort:     4444,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
			Workers:     4,
			QueueSize:   1000,
		},
		HTTP: HTTPConfig{
			Port:           8080,
			Address:        "0.0.0.0",
			Enabled:        true,
			MaxUploadBytes: 10 << 20,
		},
		Audio: AudioConfig{
			OutputSampleRate:   16666,
			CaptureSampleRate:  16000,
			MaxTakeDuration:    60,
			SessionTimeout:     3600,
			RequireAllRecorded: true,
			SilenceThreshold:   0.01,
			TrimPadding:        2000,
		},
		Assessment: AssessmentConfig{
			Enabled:       true,
			Endpoint:      "https://api.example.com/assess",
			APIKey:        "test-key",
			Language:      "en-US",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 10,
		},
		Storage: StorageConfig{
			DataDir:      "./data",
			DatabasePath: "./data/shares.db",
		},
		Events: EventsConfig{
			Enabled: true,
			Brokers: []string{"localhost:9092"},
			Topic:   "recordings.merged",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			modify:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			modify:      func(c *Config) { c.Server.UDPPort = 70000 },
			expectError: true,
			errorMsg:    "udp_port must be between 1 and 65535",
		},
		{
			name: "disabled udp server skips validation",
			modify: func(c *Config) {
				c.Server.Enabled = false
				c.Server.UDPPort = 0
			},
			expectError: false,
		},
		{
			name:        "output rate out of range",
			modify:      func(c *Config) { c.Audio.OutputSampleRate = 4000 },
			expectError: true,
			errorMsg:    "output_sample_rate",
		},
		{
			name:        "silence threshold too high",
			modify:      func(c *Config) { c.Audio.SilenceThreshold = 1 },
			expectError: true,
			errorMsg:    "silence_threshold",
		},
		{
			name:        "missing assessment api key",
			modify:      func(c *Config) { c.Assessment.APIKey = "" },
			expectError: true,
			errorMsg:    "api_key cannot be empty",
		},
		{
			name: "disabled assessment needs no api key",
			modify: func(c *Config) {
				c.Assessment.Enabled = false
				c.Assessment.APIKey = ""
			},
			expectError: false,
		},
		{
			name:        "missing data dir",
			modify:      func(c *Config) { c.Storage.DataDir = "" },
			expectError: true,
			errorMsg:    "data_dir cannot be empty",
		},
		{
			name:        "events without brokers",
			modify:      func(c *Config) { c.Events.Brokers = nil },
			expectError: true,
			errorMsg:    "brokers cannot be empty",
		},
		{
			name:        "invalid log level",
			modify:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(&config)

			err := config.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

const validYAML = `
server:
  enabled: true
  udp_port: 4444
  bind_address: "0.0.0.0"
  buffer_size: 65536
  workers: 4
  queue_size: 1000
http:
  enabled: true
  address: "0.0.0.0"
  port: 8080
  max_upload_bytes: 10485760
audio:
  output_sample_rate: 16666
  capture_sample_rate: 16000
  max_take_duration: 60
  session_timeout: 3600
  require_all_recorded: true
  silence_threshold: 0.01
  trim_padding: 2000
assessment:
  enabled: false
storage:
  data_dir: "./data"
  database_path: "./data/shares.db"
events:
  enabled: false
  topic: "recordings.merged"
logging:
  level: "info"
  format: "json"
  output: "stdout"
`

func TestConfigLoad(t *testing.T) {
	// Create a temporary directory for test files
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config file",
			configYAML:  validYAML,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  udp_port: 4444
  bind_address: "0.0.0.0"
  buffer_size: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
server:
  enabled: true
  udp_port: 4444
  # missing bind_address
`,
			expectError: true,
			errorMsg:    "bind_address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create temporary config file
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			// Load configuration
			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ASSESSMENT_API_KEY", "env-key")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("DATA_DIR", "/var/lib/dubbing")
	t.Setenv("DATABASE_PATH", "/var/lib/dubbing/shares.db")

	config := validConfig()
	config.ApplyEnv()

	if config.Assessment.APIKey != "env-key" {
		t.Errorf("Expected api key from env, got %s", config.Assessment.APIKey)
	}

	if len(config.Events.Brokers) != 2 || config.Events.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Expected 2 trimmed brokers, got %v", config.Events.Brokers)
	}

	if config.Storage.DataDir != "/var/lib/dubbing" {
		t.Errorf("Expected data dir from env, got %s", config.Storage.DataDir)
	}

	if config.Storage.DatabasePath != "/var/lib/dubbing/shares.db" {
		t.Errorf("Expected database path from env, got %s", config.Storage.DatabasePath)
	}

	// unset variables leave the file values alone
	if config.Events.Topic != "recordings.merged" {
		t.Errorf("Expected topic unchanged, got %s", config.Events.Topic)
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	t.Setenv("ASSESSMENT_API_KEY", "")
	t.Setenv("DATA_DIR", "/tmp/dubbing-env")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(validYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if config.Storage.DataDir != "/tmp/dubbing-env" {
		t.Errorf("Expected env data dir, got %s", config.Storage.DataDir)
	}

	if config.Audio.OutputSampleRate != 16666 {
		t.Errorf("Expected output rate 16666, got %d", config.Audio.OutputSampleRate)
	}
}

func TestDurationHelpers(t *testing.T) {
	audio := AudioConfig{
		MaxTakeDuration: 1.5,
		SessionTimeout:  60,
	}

	if audio.GetMaxTakeDuration() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5 seconds, got %v", audio.GetMaxTakeDuration())
	}

	if audio.GetSessionTimeoutDuration() != 60*time.Second {
		t.Errorf("Expected 60 seconds, got %v", audio.GetSessionTimeoutDuration())
	}

	assessment := AssessmentConfig{
		Timeout: 30,
	}

	if assessment.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", assessment.GetTimeoutDuration())
	}

	http := HTTPConfig{}
	if http.GetWriteTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected default 30 seconds, got %v", http.GetWriteTimeoutDuration())
	}

	http.WriteTimeout = 120
	if http.GetWriteTimeoutDuration() != 2*time.Minute {
		t.Errorf("Expected 2 minutes, got %v", http.GetWriteTimeoutDuration())
	}
}

func TestServerConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config ServerConfig
		valid  bool
	}{
		{
			name:   "valid config",
			config: ServerConfig{Enabled: true, UDPPort: 4444, BindAddress: "0.0.0.0", BufferSize: 65536, Workers: 4, QueueSize: 100},
			valid:  true,
		},
		{
			name:   "port too low",
			config: ServerConfig{Enabled: true, UDPPort: 0, BindAddress: "0.0.0.0", BufferSize: 65536, Workers: 4, QueueSize: 100},
			valid:  false,
		},
		{
			name:   "empty bind address",
			config: ServerConfig{Enabled: true, UDPPort: 4444, BindAddress: "", BufferSize: 65536, Workers: 4, QueueSize: 100},
			valid:  false,
		},
		{
			name:   "buffer too small",
			config: ServerConfig{Enabled: true, UDPPort: 4444, BindAddress: "0.0.0.0", BufferSize: 512, Workers: 4, QueueSize: 100},
			valid:  false,
		},
		{
			name:   "no workers",
			config: ServerConfig{Enabled: true, UDPPort: 4444, BindAddress: "0.0.0.0", BufferSize: 65536, Workers: 0, QueueSize: 100},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{"valid json to stdout", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, true},
		{"valid text to stderr", LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}, true},
		{"file output", LoggingConfig{Level: "warn", Format: "text", Output: "/var/log/dubbing.log"}, true},
		{"invalid log level", LoggingConfig{Level: "trace", Format: "json", Output: "stdout"}, false},
		{"invalid format", LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
