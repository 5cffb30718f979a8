package metrics

import (
	"log/slog"
	"net/http"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/ludisdb/ludis/server/internal/store"
)

// family describes one exported metric and how to read it from ShardStats.
type family struct {
	name  string
	help  string
	typ   dto.MetricType
	value func(store.ShardStats) float64
}

var families = []family{
	{"ludis_keys", "Entries held by the shard, including expired entries not yet reaped.",
		dto.MetricType_GAUGE, func(s store.ShardStats) float64 { return float64(s.Keys) }},
	{"ludis_expirations_pending", "Entries in the shard's expiration index.",
		dto.MetricType_GAUGE, func(s store.ShardStats) float64 { return float64(s.Expirations) }},
	{"ludis_subscriber_channels", "Keys that have been subscribed to at least once.",
		dto.MetricType_GAUGE, func(s store.ShardStats) float64 { return float64(s.Channels) }},
	{"ludis_subscribers", "Open subscriptions.",
		dto.MetricType_GAUGE, func(s store.ShardStats) float64 { return float64(s.Subscribers) }},
	{"ludis_reaped_total", "Entries removed by the reaper.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.Reaped) }},
	{"ludis_gets_total", "Point lookups.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.Gets) }},
	{"ludis_get_hits_total", "Point lookups that found a live entry.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.Hits) }},
	{"ludis_get_misses_total", "Point lookups that found nothing or an expired entry.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.Misses) }},
	{"ludis_sets_total", "Applied writes.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.Sets) }},
	{"ludis_stale_writes_total", "Conditional writes dropped because a later deadline was stored.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.StaleWrites) }},
	{"ludis_publishes_total", "Publish calls.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.Publishes) }},
	{"ludis_deliveries_total", "Values handed to subscriptions.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.Deliveries) }},
	{"ludis_deletes_total", "Deletes that removed an entry.",
		dto.MetricType_COUNTER, func(s store.ShardStats) float64 { return float64(s.Deletes) }},
}

// Collect converts store statistics into metric families, one sample per
// shard labelled shard="<index>".
func Collect(stats store.Stats) []*dto.MetricFamily {
	out := make([]*dto.MetricFamily, 0, len(families))
	for _, f := range families {
		mf := &dto.MetricFamily{
			Name: proto.String(f.name),
			Help: proto.String(f.help),
			Type: f.typ.Enum(),
		}
		for _, sh := range stats.Shards {
			m := &dto.Metric{
				Label: []*dto.LabelPair{{
					Name:  proto.String("shard"),
					Value: proto.String(strconv.Itoa(sh.ID)),
				}},
			}
			v := proto.Float64(f.value(sh))
			if f.typ == dto.MetricType_COUNTER {
				m.Counter = &dto.Counter{Value: v}
			} else {
				m.Gauge = &dto.Gauge{Value: v}
			}
			mf.Metric = append(mf.Metric, m)
		}
		out = append(out, mf)
	}
	return out
}

// Handler serves the current statistics from src in the Prometheus text
// exposition format.
func Handler(src func() store.Stats) http.Handler {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range Collect(src()) {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
	})
}
