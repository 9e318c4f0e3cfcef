package module

import (
	"flag"

	"github.com/robotalks/revolute.go/pkg/servo"
)

// Config defines the tunables of the firmware core.
type Config struct {
	// ServoAttempts bounds each servo communication pass.
	ServoAttempts int
	// StatusReturnLevel is the reply level the coupler pins the servo to.
	StatusReturnLevel byte
	// ResetOnFail broadcasts a servo RESET once, after the first fruitless
	// discovery pass, widening the servo's response window. Off by default.
	ResetOnFail bool
	// ForceStatusReturn writes the status return level once, after the
	// first fruitless read-back pass, instead of only retrying. Off by
	// default.
	ForceStatusReturn bool
}

var defaultConfig = Config{
	ServoAttempts:     10,
	StatusReturnLevel: servo.StatusReturnRead,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.ServoAttempts, "servo-attempts",
		defaultConfig.ServoAttempts, "Attempts per servo communication pass.")
	flag.BoolVar(&defaultConfig.ResetOnFail, "servo-reset-recovery",
		defaultConfig.ResetOnFail, "Broadcast a servo RESET once, after the first fruitless discovery pass.")
	flag.BoolVar(&defaultConfig.ForceStatusReturn, "servo-force-status-return",
		defaultConfig.ForceStatusReturn, "Write the status return level once, after the first fruitless read-back pass.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a copy of the default configuration.
func NewConfig() Config {
	return defaultConfig
}
