package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type WakeMode string

const (
	WakeSerial   WakeMode = "serial"
	WakeManual   WakeMode = "manual"
	WakeDisabled WakeMode = "disabled"
)

type BootState string

const (
	BootLightSleep BootState = "light_sleep"
	BootListening  BootState = "listening"
	BootDeepSleep  BootState = "deep_sleep"
)

type WakeConfig struct {
	Mode WakeMode `mapstructure:"mode"`
	Port string   `mapstructure:"port"`
	Baud int      `mapstructure:"baud"`
}

type TimeoutConfig struct {
	Conversation time.Duration `mapstructure:"conversation"`
	Idle         time.Duration `mapstructure:"idle"`
}

type OllamaConfig struct {
	URL          string        `mapstructure:"url"`
	Model        string        `mapstructure:"model"`
	Unit         string        `mapstructure:"unit"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
}

type WhisperConfig struct {
	Binary   string `mapstructure:"binary"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
	Threads  int    `mapstructure:"threads"`
}

type PiperConfig struct {
	Binary   string `mapstructure:"binary"`
	Model    string `mapstructure:"model"`
	ModelDir string `mapstructure:"model_dir"`
	TempDir  string `mapstructure:"temp_dir"`
}

type AudioConfig struct {
	SampleRate       int           `mapstructure:"sample_rate"`
	SilenceThreshold float64       `mapstructure:"silence_threshold"`
	SilenceDuration  time.Duration `mapstructure:"silence_duration"`
	MinUtterance     time.Duration `mapstructure:"min_utterance"`
	MaxUtterance     time.Duration `mapstructure:"max_utterance"`
}

type HistoryConfig struct {
	MaxEntries int    `mapstructure:"max_entries"`
	SaveFile   string `mapstructure:"save_file"`
}

type MonitorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LEDConfig describes the state indicator LEDs, BCM pin numbers. Yellow is
// optional; without it the processing color is mixed from red and green.
type LEDConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Chip      string `mapstructure:"chip"`
	RedPin    int    `mapstructure:"red_pin"`
	GreenPin  int    `mapstructure:"green_pin"`
	BluePin   int    `mapstructure:"blue_pin"`
	YellowPin int    `mapstructure:"yellow_pin"`
}

type Config struct {
	Wake      WakeConfig    `mapstructure:"wake"`
	Timeouts  TimeoutConfig `mapstructure:"timeouts"`
	BootState BootState     `mapstructure:"boot_state"`
	Ollama    OllamaConfig  `mapstructure:"ollama"`
	Whisper   WhisperConfig `mapstructure:"whisper"`
	Piper     PiperConfig   `mapstructure:"piper"`
	Audio     AudioConfig   `mapstructure:"audio"`
	History   HistoryConfig `mapstructure:"history"`
	Monitor   MonitorConfig `mapstructure:"monitor"`
	LED       LEDConfig     `mapstructure:"led"`
	ChimePath string        `mapstructure:"chime_path"`
	IPCSocket string        `mapstructure:"ipc_socket"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wake.mode", string(WakeManual))
	v.SetDefault("wake.port", "/dev/ttyACM0")
	v.SetDefault("wake.baud", 115200)

	v.SetDefault("timeouts.conversation", 30*time.Second)
	v.SetDefault("timeouts.idle", 300*time.Second)

	v.SetDefault("boot_state", string(BootLightSleep))

	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("ollama.model", "gemma3-ptbr")
	v.SetDefault("ollama.unit", "ollama")
	v.SetDefault("ollama.start_timeout", 30*time.Second)
	v.SetDefault("ollama.temperature", 0.7)
	v.SetDefault("ollama.max_tokens", 250)

	v.SetDefault("whisper.binary", "whisper-cli")
	v.SetDefault("whisper.model", "ggml-base.bin")
	v.SetDefault("whisper.language", "pt")
	v.SetDefault("whisper.threads", 4)

	v.SetDefault("piper.binary", "piper")
	v.SetDefault("piper.model", "pt_BR-faber-medium.onnx")
	v.SetDefault("piper.model_dir", ".")
	v.SetDefault("piper.temp_dir", "/tmp")

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.silence_threshold", 0.015)
	v.SetDefault("audio.silence_duration", 1500*time.Millisecond)
	v.SetDefault("audio.min_utterance", 500*time.Millisecond)
	v.SetDefault("audio.max_utterance", 15*time.Second)

	v.SetDefault("history.max_entries", 20)
	v.SetDefault("history.save_file", "")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.addr", "127.0.0.1:8099")

	v.SetDefault("led.enabled", false)
	v.SetDefault("led.chip", "gpiochip0")
	v.SetDefault("led.red_pin", 17)
	v.SetDefault("led.green_pin", 27)
	v.SetDefault("led.blue_pin", 22)
	v.SetDefault("led.yellow_pin", 23)

	v.SetDefault("chime_path", "")
	v.SetDefault("ipc_socket", "/tmp/buddy.sock")
}

// Load reads the config file (optional, missing file is fine) with BUDDY_*
// env overrides on top of defaults, then validates once.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BUDDY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Wake.Mode {
	case WakeSerial, WakeManual, WakeDisabled:
	default:
		return fmt.Errorf("invalid wake.mode %q", c.Wake.Mode)
	}

	switch c.BootState {
	case BootLightSleep, BootListening, BootDeepSleep:
	default:
		return fmt.Errorf("invalid boot_state %q", c.BootState)
	}

	if c.Wake.Mode == WakeSerial && c.Wake.Port == "" {
		return fmt.Errorf("wake.mode serial requires wake.port")
	}

	if c.Timeouts.Conversation <= 0 {
		return fmt.Errorf("timeouts.conversation must be positive, got %s", c.Timeouts.Conversation)
	}
	if c.Timeouts.Idle <= 0 {
		return fmt.Errorf("timeouts.idle must be positive, got %s", c.Timeouts.Idle)
	}
	if c.Ollama.StartTimeout <= 0 {
		return fmt.Errorf("ollama.start_timeout must be positive, got %s", c.Ollama.StartTimeout)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}

	if c.LED.Enabled && c.LED.Chip == "" {
		return fmt.Errorf("led.enabled requires led.chip")
	}

	return nil
}
