package influxdb

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/wpaif/internal/infrastructure/config"
)

var sampleTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestSignalPoint(t *testing.T) {
	values := map[string]string{
		"RSSI":      "-52",
		"LINKSPEED": "144",
		"NOISE":     "9999",
		"FREQUENCY": "5180",
		"WIDTH":     "80 MHz",
		"AVG_RSSI":  "not-a-number",
	}

	point, ok := signalPoint("wlan0", values, sampleTime)
	if !ok {
		t.Fatal("signalPoint() ok = false, want true")
	}

	line := write.PointToLineProtocol(point, time.Nanosecond)

	for _, want := range []string{
		"wifi_signal,device=wlan0 ",
		"rssi=-52i",
		"linkspeed=144i",
		"noise=9999i",
		"frequency=5180i",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line protocol %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "avg_rssi") {
		t.Errorf("unparseable AVG_RSSI should be skipped: %q", line)
	}
	if strings.Contains(line, "WIDTH") || strings.Contains(line, "width") {
		t.Errorf("unmapped key should be skipped: %q", line)
	}
}

func TestSignalPoint_NoNumericFields(t *testing.T) {
	if _, ok := signalPoint("wlan0", map[string]string{"WIDTH": "20 MHz"}, sampleTime); ok {
		t.Error("signalPoint() ok = true for reply without known fields")
	}
}

func TestStatusPoint(t *testing.T) {
	tests := []struct {
		name      string
		values    map[string]string
		wantOK    bool
		contains  []string
		notExpect []string
	}{
		{
			name: "associated",
			values: map[string]string{
				"wpa_state": "COMPLETED",
				"ssid":      "home",
				"bssid":     "aa:bb:cc:dd:ee:ff",
				"freq":      "2412",
			},
			wantOK:   true,
			contains: []string{"wifi_status,device=wlan0,ssid=home ", "connected=true", `wpa_state="COMPLETED"`, "freq=2412i", `bssid="aa:bb:cc:dd:ee:ff"`},
		},
		{
			name:      "scanning",
			values:    map[string]string{"wpa_state": "SCANNING"},
			wantOK:    true,
			contains:  []string{"wifi_status,device=wlan0 ", "connected=false"},
			notExpect: []string{"ssid=", "freq="},
		},
		{
			name:   "no state",
			values: map[string]string{"ssid": "home"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point, ok := statusPoint("wlan0", tt.values, sampleTime)
			if ok != tt.wantOK {
				t.Fatalf("statusPoint() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			line := write.PointToLineProtocol(point, time.Nanosecond)
			for _, want := range tt.contains {
				if !strings.Contains(line, want) {
					t.Errorf("line protocol %q missing %q", line, want)
				}
			}
			for _, unwanted := range tt.notExpect {
				if strings.Contains(line, unwanted) {
					t.Errorf("line protocol %q should not contain %q", line, unwanted)
				}
			}
		})
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		flush     int
		wantBatch int
		wantFlush int
	}{
		{"configured", 200, 2, 200, 2},
		{"zero uses defaults", 0, 0, 50, 5},
		{"negative uses defaults", -5, -1, 50, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:8086"}
			cfg.BatchSize = tt.batch
			cfg.FlushInterval = tt.flush
			gotBatch, gotFlush := batchSettings(cfg)
			if gotBatch != tt.wantBatch || gotFlush != tt.wantFlush {
				t.Errorf("batchSettings() = (%d, %d), want (%d, %d)", gotBatch, gotFlush, tt.wantBatch, tt.wantFlush)
			}
		})
	}
}

func TestWrite_NotConnectedIsNoop(t *testing.T) {
	c := &Client{}
	// Must not panic with a nil write API.
	c.WriteSignal("wlan0", map[string]string{"RSSI": "-40"}, sampleTime)
	c.WriteStatus("wlan0", map[string]string{"wpa_state": "COMPLETED"}, sampleTime)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}
