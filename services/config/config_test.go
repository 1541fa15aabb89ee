// config/config_test.go
package config

import (
	"context"
	"testing"
	"time"

	"sensorcode-go/bus"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	// Override lookup for this test.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "pico" {
			return nil, false
		}
		return []byte(`{
			"mode": "dev",
			"debug": true,
			"region": {"code": "eu"}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "pico")
	svc.Start(ctx, conn)

	// Subscribe; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))

	wantCount := 3 // mode, debug, region
	got := map[string]any{}

	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() < 2 {
				t.Fatalf("unexpected topic length: %#v", m.Topic)
			}
			if m.Topic.At(0) != configPrefix {
				t.Fatalf("unexpected prefix: %q", m.Topic.At(0))
			}
			got[m.Topic.At(1)] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d (%v)", wantCount, len(got), got)
	}

	if s, ok := got["mode"].(string); !ok || s != "dev" {
		t.Fatalf("mode payload = %#v, want \"dev\"", got["mode"])
	}
	if bval, ok := got["debug"].(bool); !ok || bval != true {
		t.Fatalf("debug payload = %#v, want true", got["debug"])
	}
	if m, ok := got["region"].(map[string]any); !ok {
		t.Fatalf("region payload type = %T, want map[string]any", got["region"])
	} else if code, ok := m["code"].(string); !ok || code != "eu" {
		t.Fatalf("region.code = %#v, want \"eu\"", m["code"])
	}
}

func TestConfig_DefaultHostConfig_ShapesHAL(t *testing.T) {
	if _, ok := EmbeddedConfigLookup("host"); !ok {
		t.Fatal("no embedded host config")
	}

	b := bus.NewBus(8)
	conn := b.NewConnection("test-default")
	svc := NewConfigService()
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "host")
	if err := svc.publishConfig(ctx, conn); err != nil {
		t.Fatalf("publishConfig: %v", err)
	}

	sub := conn.Subscribe(bus.T("config", "hal"))
	select {
	case m := <-sub.Channel():
		hal, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("config/hal payload type %T", m.Payload)
		}
		devs, ok := hal["devices"].([]any)
		if !ok || len(devs) != 1 {
			t.Fatalf("devices = %#v, want one entry", hal["devices"])
		}
		dev := devs[0].(map[string]any)
		if dev["type"] != "dht12" || dev["id"] != "dht12-0" {
			t.Fatalf("unexpected device entry: %#v", dev)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for retained config/hal")
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService()

	// No device ID in context
	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	// Override lookup to simulate absence.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}
