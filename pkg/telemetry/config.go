package telemetry

import (
	"flag"
	"os"

	"github.com/denisbrodbeck/machineid"
)

// Config provides common options for telemetry publishing.
type Config struct {
	// BrokerURL specifies the MQTT broker to use, e.g.
	// mqtt://host:port/topic-prefix. Empty disables telemetry.
	BrokerURL string
	// InstanceID identifies this process in the topic space.
	InstanceID string
}

var defaultConfig Config

func init() {
	if val := os.Getenv("REVOLUTE_MQTT_URL"); val != "" {
		defaultConfig.BrokerURL = val
	}
	defaultConfig.InstanceID = instanceID()
}

// instanceID derives a stable identity for this machine.
func instanceID() string {
	id, err := machineid.ID()
	if err != nil {
		host, herr := os.Hostname()
		if herr != nil {
			return "unknown"
		}
		return host
	}
	return id
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.BrokerURL, "mqtt",
		defaultConfig.BrokerURL, "MQTT broker URL, empty to disable telemetry.")
	flag.StringVar(&defaultConfig.InstanceID, "instance",
		defaultConfig.InstanceID, "Instance ID in the telemetry topic space.")
}

// NewConfig creates a copy of the default configuration.
func NewConfig() Config {
	return defaultConfig
}

// NewPublisher creates a Publisher from the config.
func (c Config) NewPublisher() (*Publisher, error) {
	return NewPublisher(c.BrokerURL, c.InstanceID)
}
