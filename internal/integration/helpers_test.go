//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0", kafka.WithClusterID("crash-hotspot-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// writeFixtures writes a 4x4 grid of 80 m roads and crashes along them, with
// a heavy cluster on the two centre roads, and returns the two file paths.
func writeFixtures(t *testing.T) (crashes, roads string) {
	t.Helper()
	dir := t.TempDir()
	start := time.Date(2021, time.March, 1, 8, 0, 0, 0, time.UTC)

	roadFC := geojson.NewFeatureCollection()
	crashFC := geojson.NewFeatureCollection()
	n := 0
	for j := range 4 {
		for i := range 4 {
			x0, y := float64(i*100), float64(j*100)
			f := geojson.NewFeature(orb.LineString{{x0, y}, {x0 + 80, y}})
			f.ID = j*4 + i + 1
			f.Properties["name"] = "block " + strconv.Itoa(j*4+i+1)
			roadFC.Append(f)

			per := 1
			if (i == 1 || i == 2) && j == 1 {
				per = 6
			}
			for k := range per {
				n++
				c := geojson.NewFeature(orb.Point{x0 + 10 + float64(k*10), y + 1})
				c.ID = n
				c.Properties["CrashDate"] = start.AddDate(0, 0, n*20).Format("2006-01-02 15:04:05")
				c.Properties["Severity"] = "Injury"
				if k == 0 && per > 1 {
					c.Properties["Severity"] = "Fatal"
				}
				crashFC.Append(c)
			}
		}
	}

	crashes = filepath.Join(dir, "crashes.geojson")
	roads = filepath.Join(dir, "roads.geojson")
	writeJSON(t, crashes, crashFC)
	writeJSON(t, roads, roadFC)
	return crashes, roads
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
