package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/config"
	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/mqttbridge"
)

var (
	brokerFlag   string
	prefixFlag   string
	clientIDFlag string
	mqttUserFlag string
)

func init() {
	rootCmd.AddCommand(bridgeCmd)
	f := bridgeCmd.Flags()
	f.StringVar(&brokerFlag, "broker", "", "MQTT broker URL (default: mqtt.broker from the configuration)")
	f.StringVar(&prefixFlag, "prefix", "", "Topic prefix (default: mqtt.topic_prefix or freeathome)")
	f.StringVar(&clientIDFlag, "client-id", "", "MQTT client id (default: freeathome-<random>)")
	f.StringVar(&mqttUserFlag, "mqtt-user", "", "MQTT user name; password from "+config.MQTTPasswordEnv)
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Mirror devices to an MQTT broker",
	Long: `Keep a session with the SysAP open and mirror every device object to MQTT.

Topics, below the prefix:
  <serial>/<channel>/attributes   retained JSON description
  <serial>/<channel>/state        raw state, published on every change
  <serial>/<channel>/set          commands: ON, OFF, OPEN, CLOSE, STOP, 0-100, ACTIVATE
  status                          online / offline`,
	Example: `  fah bridge --broker tcp://localhost:1883
  mosquitto_pub -t freeathome/ABB700C12345/ch0003/set -m ON`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

// mqttSettings merges the configured MQTT section with flags
func mqttSettings(reg *config.Registry) config.MQTT {
	m := config.MQTT{}
	if reg.MQTT != nil {
		m = *reg.MQTT
	}
	if brokerFlag != "" {
		m.Broker = brokerFlag
	}
	if prefixFlag != "" {
		m.TopicPrefix = prefixFlag
	}
	if clientIDFlag != "" {
		m.ClientID = clientIDFlag
	}
	if mqttUserFlag != "" {
		m.Username = mqttUserFlag
	}
	if m.ClientID == "" {
		m.ClientID = "freeathome-" + uuid.NewString()[:8]
	}
	m.TopicPrefix = m.TopicPrefixOrDefault()
	return m
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	m := mqttSettings(reg)
	if m.Broker == "" {
		return errors.New("no MQTT broker: pass --broker or set mqtt.broker")
	}

	s, t, err := newSession(ctx, nil)
	if err != nil {
		return err
	}

	topics := mqttbridge.Topics{Prefix: m.TopicPrefix}
	client, err := mqttbridge.Connect(mqttbridge.ClientOptions{
		Broker:      m.Broker,
		ClientID:    m.ClientID,
		Username:    m.Username,
		Password:    os.Getenv(config.MQTTPasswordEnv),
		StatusTopic: topics.Status(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	bridge, err := mqttbridge.New(mqttbridge.Options{
		Broker: client,
		Source: s.Engine(),
		Prefix: m.TopicPrefix,
		QoS:    m.QoS,
		Retain: m.Retain,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Bridging SysAP %s to %s under %s/ (Ctrl-C to stop)\n", t.host, m.Broker, m.TopicPrefix)

	sessionErr := make(chan error, 1)
	go func() { sessionErr <- s.Run(ctx) }()

	bridgeErr := bridge.Run(ctx)
	cancel()
	runErr := <-sessionErr

	logging.Info("Bridge stopped", zap.NamedError("bridge", bridgeErr), zap.NamedError("session", runErr))
	for _, err := range []error{bridgeErr, runErr} {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}
