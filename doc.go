// Package kapua is a telemetry datastore built on NATS JetStream.
//
// Devices publish telemetry messages on hierarchical channels within
// isolated tenant scopes. Each stored message also maintains three kinds
// of derived metadata, so the store can answer "which clients exist",
// "which channels exist" and "which metrics exist" without scanning raw
// messages:
//
//   - ClientInfo: first message seen from each client in a scope
//   - ChannelInfo: first message seen on each (client, channel) pair
//   - MetricInfo: first observation of each typed payload property,
//     plus its most recent value
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          cmd/ingestd                │  NATS subscription,
//	│   (worker pool, config, health)     │  composition root
//	└─────────────────────────────────────┘
//	           ↓ submits messages
//	┌─────────────────────────────────────┐
//	│        datastore.Mediator           │  Ingestion state machine,
//	│   (store + metadata orchestration)  │  delete cascades
//	└─────────────────────────────────────┘
//	           ↓ capability interfaces
//	┌─────────────────────────────────────┐
//	│   datastore/registry + schema       │  Entity facades, partition
//	│                                     │  and mapping registration
//	└─────────────────────────────────────┘
//	           ↓ store.Backend
//	┌─────────────────────────────────────┐
//	│        JetStream KV buckets         │  One bucket per entity kind
//	└─────────────────────────────────────┘
//
// Metadata records carry identifiers derived from their identifying
// fields, so concurrent writers converge on a single document per entity
// and the first write fixes the first-observation provenance. Messages
// are stored under weekly index partitions whose metric mappings are
// registered once per (partition, name, type) and guarded against
// conflicting redeclaration.
//
// # Package layout
//
//   - datastore: entity model, mediator, capability interfaces
//   - datastore/registry: store-backed facades for the four entity kinds
//   - datastore/schema: partition and metric-mapping synchronizer
//   - datastore/store: document backend over JetStream KV, plus an
//     in-memory backend for tests
//   - natsclient: NATS connection and KV plumbing
//   - errors, metric, health, pkg/...: shared infrastructure
package kapua
