package internal

import (
	"fmt"
	"time"
)

// Config is the relay process configuration, read from the environment.
type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Host     string `env:"HOST,default=0.0.0.0"`
	// Port serves gRPC, WebsocketPort the live channel.
	Port          int `env:"PORT,default=8080"`
	WebsocketPort int `env:"WEBSOCKET_PORT,default=8090"`
	DebugPort     int `env:"DEBUG_PORT"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT,default=10s"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH"`

	OutboxSize         int           `env:"OUTBOX_SIZE,default=256"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	MaxPayloadBytes    int           `env:"MAX_PAYLOAD_BYTES,default=16384"`
	MaxFramesPerSecond int           `env:"MAX_FRAMES_PER_SECOND,default=20"`
	MaxDecodeErrors    int           `env:"MAX_DECODE_ERRORS,default=3"`
	LanePruneInterval  time.Duration `env:"LANE_PRUNE_INTERVAL,default=1m"`

	IndexQueueSize     int           `env:"INDEX_QUEUE_SIZE,default=1024"`
	IndexBatchSize     int           `env:"INDEX_BATCH_SIZE,default=64"`
	IndexFlushInterval time.Duration `env:"INDEX_FLUSH_INTERVAL,default=1s"`
	SearchLimit        int           `env:"SEARCH_LIMIT,default=20"`

	TelemetryBufferSize  int           `env:"TELEMETRY_BUFFER_SIZE,default=1024"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	LatencyThreshold     time.Duration `env:"LATENCY_THRESHOLD,default=200ms"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=10"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=true"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
	// ModerationDir overrides the embedded dictionaries with a folder of <lang>.txt files.
	ModerationDir string `env:"MODERATION_DIR"`
}

// Validate checks the cross-field rules go-env cannot express.
func (c Config) Validate() error {
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes, got %d", len(c.AuthSecret))
	}
	if c.Port == c.WebsocketPort {
		return fmt.Errorf("PORT and WEBSOCKET_PORT must differ, both are %d", c.Port)
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("OUTBOX_SIZE must be positive, got %d", c.OutboxSize)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
