package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `{
  "hal": {
    "devices": [
      {
        "id": "dht12-0",
        "type": "dht12",
        "bus_ref": {"id": "i2c0", "type": "i2c"},
        "params": {"capture_every_ms": 2000, "jitter_ms": 200}
      }
    ]
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {"baud": 115200, "tx_pin": 0, "rx_pin": 1}
    }
  },
  "heartbeat": {
      "interval": 2
  }
}`

const cfgHost = `{
  "hal": {
    "devices": [
      {
        "id": "dht12-0",
        "type": "dht12",
        "bus_ref": {"id": "i2c0", "type": "i2c"},
        "params": {"capture_every_ms": 1000}
      }
    ]
  },
  "heartbeat": {
      "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
}
