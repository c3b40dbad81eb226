// Package history records entity state changes and sync run outcomes to
// InfluxDB.
//
// History is optional: when disabled in config, Connect returns ErrDisabled
// and the rest of the system runs without it. Writes are non-blocking and
// batched; a failed InfluxDB never blocks a sync run.
//
// Usage:
//
//	client, err := history.Connect(cfg.History)
//	if errors.Is(err, history.ErrDisabled) {
//	    client = nil // run without history
//	} else if err != nil {
//	    return err
//	}
//
//	client.RecordStateChange("light.kitchen", "light", "external", "on", "off")
package history
