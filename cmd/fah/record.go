package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/config"
	"github.com/muurk/freeathome/internal/history"
	"github.com/muurk/freeathome/internal/logging"
)

var (
	influxURLFlag    string
	influxOrgFlag    string
	influxBucketFlag string
)

func init() {
	rootCmd.AddCommand(recordCmd)
	f := recordCmd.Flags()
	f.StringVar(&influxURLFlag, "influx-url", "", "InfluxDB URL (default: influxdb.url from the configuration)")
	f.StringVar(&influxOrgFlag, "org", "", "InfluxDB organisation (default: influxdb.org)")
	f.StringVar(&influxBucketFlag, "bucket", "", "InfluxDB bucket (default: influxdb.bucket)")
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record state changes in InfluxDB",
	Long: `Keep a session with the SysAP open and write every device state change to
InfluxDB as a point tagged with the device's lookup key, category, serial and
channel. The API token is read from ` + config.InfluxTokenEnv + `.`,
	Example: `  FAH_INFLUX_TOKEN=... fah record --influx-url http://localhost:8086 --org home --bucket freeathome`,
	Args:    cobra.NoArgs,
	RunE:    runRecord,
}

// influxSettings merges the configured InfluxDB section with flags
func influxSettings(reg *config.Registry) history.Config {
	cfg := history.Config{Token: os.Getenv(config.InfluxTokenEnv)}
	if reg.InfluxDB != nil {
		cfg.URL = reg.InfluxDB.URL
		cfg.Org = reg.InfluxDB.Org
		cfg.Bucket = reg.InfluxDB.Bucket
		cfg.Measurement = reg.InfluxDB.Measurement
		cfg.FlushInterval = time.Duration(reg.InfluxDB.FlushInterval) * time.Second
	}
	if influxURLFlag != "" {
		cfg.URL = influxURLFlag
	}
	if influxOrgFlag != "" {
		cfg.Org = influxOrgFlag
	}
	if influxBucketFlag != "" {
		cfg.Bucket = influxBucketFlag
	}
	return cfg
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	cfg := influxSettings(reg)
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return errors.New("InfluxDB is not configured: pass --influx-url, --org and --bucket or set the influxdb section")
	}

	s, t, err := newSession(ctx, nil)
	if err != nil {
		return err
	}

	recorder, err := history.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Recording SysAP %s to %s bucket %q (Ctrl-C to stop)\n", t.host, cfg.URL, cfg.Bucket)

	sessionErr := make(chan error, 1)
	go func() { sessionErr <- s.Run(ctx) }()

	recordErr := recorder.Run(ctx, s.Engine())
	cancel()
	runErr := <-sessionErr

	logging.Info("Recorder stopped",
		zap.Int64("points", recorder.Written()),
		zap.NamedError("recorder", recordErr),
		zap.NamedError("session", runErr),
	)
	for _, err := range []error{recordErr, runErr} {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}
