package metrics

// Package metrics defines the recorders fed by allocation, pricing and
// recalculation events. Sinks like PromSink and InfluxSink implement any
// subset of them and can be combined with NewMultiSink. The factory helpers
// return a MultiSink automatically when multiple sinks are configured.
