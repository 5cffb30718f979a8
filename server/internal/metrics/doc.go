// Package metrics exposes store statistics in the Prometheus text format.
//
// Collect(stats) builds client_model metric families with one sample per
// shard; Handler(src) encodes them with expfmt on every scrape, so the
// handler holds no state of its own and needs no registry.
//
// Gauges: ludis_keys, ludis_expirations_pending, ludis_subscriber_channels,
// ludis_subscribers. Counters: ludis_reaped_total, ludis_gets_total,
// ludis_get_hits_total, ludis_get_misses_total, ludis_sets_total,
// ludis_stale_writes_total, ludis_publishes_total, ludis_deliveries_total,
// ludis_deletes_total.
package metrics
