// Package influxdb provides InfluxDB connectivity for authcore.
//
// It wraps the official influxdb-client-go v2 library and is used to keep
// a time series of authentication activity (logins, failed logins,
// refreshes, logouts) in the auth_events measurement. InfluxDB is
// optional; when disabled nothing is written.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent("login", principalID, originIP, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched according to batch_size and
// flush_interval; async write errors are delivered to SetOnError.
package influxdb
