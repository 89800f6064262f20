// Package flowlog owns the sensor's telemetry record model: the raw log
// record as returned by the log service and the six-field numeric sample
// extracted from its free-text message.
//
// Parsing never fails loudly. A message that does not carry enough numeric
// tokens is reported as insufficient and the caller skips it.
package flowlog
