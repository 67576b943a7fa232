// Package infra holds the adapters behind the core interfaces: the Postgres
// repository, the postcode geocoder and its Redis cache, the MQTT decision
// publisher, metrics sinks, Sentry and the legacy allocator client. Core
// packages never import infra.
package infra
