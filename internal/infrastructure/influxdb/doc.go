// Package influxdb is the optional time-series sink for portfolio view
// telemetry. The REST layer records every committed view increment here;
// points are batched and written asynchronously so analytics never sit
// on the request path.
package influxdb
