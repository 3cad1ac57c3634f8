package influxdb_test

import (
	"errors"
	"testing"

	"github.com/ashmarby/folioline-core/internal/infrastructure/config"
	"github.com/ashmarby/folioline-core/internal/infrastructure/influxdb"
)

func TestConnectDisabled(t *testing.T) {
	cfg := config.AnalyticsConfig{Enabled: false}

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Fatalf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectInvalidURL(t *testing.T) {
	cfg := config.AnalyticsConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1", // nothing listens here
		Token:   "token",
		Org:     "folioline",
		Bucket:  "analytics",
	}

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
