// Package config supplies the typed configuration snapshot consumed by every
// component named in SPEC_FULL.md. It is the collaborator described in
// spec.md section 6 ("Configuration"): it loads once from a YAML file plus
// environment overrides, and hands out immutable snapshots to sessions.
package config

import "time"

// VADKind selects the static, process-wide VAD variant (spec.md section 4.2).
type VADKind string

const (
	VADKindEnergy VADKind = "energy"
	VADKindModel  VADKind = "model"
)

// AudioFormat is the negotiated wire format for one session.
type AudioFormat string

const (
	AudioFormatCompressed AudioFormat = "compressed"
	AudioFormatPCM16_16k  AudioFormat = "pcm16le_16k"
)

// ListenMode mirrors the device's listen-mode tag.
type ListenMode string

const (
	ListenModeAuto     ListenMode = "auto"
	ListenModeManual   ListenMode = "manual"
	ListenModeRealtime ListenMode = "realtime"
)

// AuthConfig controls the auth collaborator (spec.md section 6, core/auth.py).
type AuthConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Tokens         map[string]string `yaml:"tokens"` // token -> display name
	AllowedDevices []string          `yaml:"allowed_devices"`
	JWTSecret      string            `yaml:"jwt_secret"`
}

// VADConfig holds thresholds for both VAD variants (spec.md section 4.2).
type VADConfig struct {
	Kind                 VADKind `yaml:"kind"`
	ModelThresholdHigh    float64 `yaml:"model_threshold_high"`
	ModelThresholdLow     float64 `yaml:"model_threshold_low"`
	EnergyGateOnDB        float64 `yaml:"energy_gate_on_db"`
	EnergyGateOffDeltaDB  float64 `yaml:"energy_gate_off_delta_db"`
	EnergyTauMs           int     `yaml:"energy_tau_ms"`
	EnergyCalibrationMs   int     `yaml:"energy_calibration_ms"`
	FrameWindowSize       int     `yaml:"frame_window_size"`
	FrameWindowThreshold  int     `yaml:"frame_window_threshold"`
}

// EoSConfig holds the EoS controller's thresholds (spec.md section 4.4).
type EoSConfig struct {
	WakeGuardMs          int `yaml:"wake_guard_ms"`
	SpeakLockMs          int `yaml:"tts_start_lock_ms"`
	SilenceFalseFrames   int `yaml:"silence_false_frames"`
	MinSilenceDurationMs int `yaml:"min_silence_duration_ms"`
	WatchdogSilenceMs    int `yaml:"watchdog_silence_ms"`
	LastVoiceDebounceMs  int `yaml:"last_voice_debounce_ms"`
	MinPCMBytes          int `yaml:"min_pcm_bytes"`
	BargeInEnabled       bool `yaml:"barge_in_enabled"`
}

// DecoderConfig holds frame-decoder thresholds (spec.md section 4.1).
type DecoderConfig struct {
	DTXThresholdBytes      int `yaml:"dtx_threshold_bytes"`
	DTXCodecBoundaryBytes  int `yaml:"dtx_codec_boundary_bytes"`
}

// DispatchConfig holds the recognition dispatcher's timeouts (spec.md 4.5).
type DispatchConfig struct {
	TranscriptionTimeout time.Duration `yaml:"transcription_timeout"`
	IdentificationTimeout time.Duration `yaml:"identification_timeout"`
	IdentificationEnabled bool          `yaml:"identification_enabled"`
}

// SessionConfig holds per-connection lifecycle thresholds (spec.md 4.8).
type SessionConfig struct {
	CloseNoVoiceSeconds int           `yaml:"close_connection_no_voice_time"`
	ChunkIdleTimeout    time.Duration `yaml:"chunk_idle_timeout"`
	DefaultListenMode   ListenMode    `yaml:"default_listen_mode"`
	DefaultAudioFormat  AudioFormat   `yaml:"default_audio_format"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
}

// ServerConfig holds the listener-level settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	WebSocketPath  string `yaml:"websocket_path"`
	OTAPath        string `yaml:"ota_path"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// ProviderConfig selects and configures the concrete providers.
type ProviderConfig struct {
	STT            string `yaml:"stt"`
	LLM            string `yaml:"llm"`
	TTS            string `yaml:"tts"`
	Identification string `yaml:"identification"`
}

// Config is the full typed snapshot. It is produced once by Load/Reload and
// handed by value (or as an immutable pointer) to each session — in-flight
// sessions keep the snapshot they were built with.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	VAD       VADConfig       `yaml:"vad"`
	EoS       EoSConfig       `yaml:"eos"`
	Decoder   DecoderConfig   `yaml:"decoder"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProviderConfig  `yaml:"providers"`
}

// Default returns the specification's documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8000,
			WebSocketPath: "/xiaozhi/v1/",
			OTAPath:       "/ota/",
			MetricsAddr:   ":9090",
		},
		Auth: AuthConfig{
			Enabled: false,
			Tokens:  map[string]string{},
		},
		VAD: VADConfig{
			Kind:                 VADKindEnergy,
			ModelThresholdHigh:   0.6,
			ModelThresholdLow:    0.4,
			EnergyGateOnDB:       0,
			EnergyGateOffDeltaDB: 4,
			EnergyTauMs:          250,
			EnergyCalibrationMs:  800,
			FrameWindowSize:      5,
			FrameWindowThreshold: 2,
		},
		EoS: EoSConfig{
			WakeGuardMs:          300,
			SpeakLockMs:          1200,
			SilenceFalseFrames:   10,
			MinSilenceDurationMs: 600,
			WatchdogSilenceMs:    1000,
			LastVoiceDebounceMs:  100,
			MinPCMBytes:          12000,
			BargeInEnabled:       true,
		},
		Decoder: DecoderConfig{
			DTXThresholdBytes:     3,
			DTXCodecBoundaryBytes: 12,
		},
		Dispatch: DispatchConfig{
			TranscriptionTimeout:  15 * time.Second,
			IdentificationTimeout: 15 * time.Second,
			IdentificationEnabled: false,
		},
		Session: SessionConfig{
			CloseNoVoiceSeconds: 120,
			ChunkIdleTimeout:    30 * time.Second,
			DefaultListenMode:   ListenModeAuto,
			DefaultAudioFormat:  AudioFormatCompressed,
			HeartbeatInterval:   7 * time.Second,
		},
		Providers: ProviderConfig{
			STT: "groq",
			LLM: "groq",
			TTS: "lokutor",
		},
	}
}
