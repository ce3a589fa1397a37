// Package isolation derives the cache and pool isolation keys the query
// engine uses to avoid cross-tenant interference. All derivations are pure
// string functions of the security context; they are recomputed on every
// call and never stored.
package isolation

import (
	"github.com/cubegate/cubegate/pkg/tenant"
)

const defaultBucket = "default"

// AppID keys compiled-schema caches. Two requests with the same connection
// share one compiled application; requests lacking a connection share a
// single default bucket.
func AppID(sc tenant.SecurityContext) string {
	return "APP_" + orDefault(sc.Connection)
}

// OrchestratorID keys connection pools and pre-aggregation storage. It is
// finer-grained than AppID because one physical connection can serve several
// logical datasets.
func OrchestratorID(sc tenant.SecurityContext) string {
	return "ORCH_" + orDefault(sc.Connection) + "_" + orDefault(sc.Dataset)
}

// PreAggregationSchema names the schema the engine materializes
// pre-aggregations into for this tenant.
func PreAggregationSchema(sc tenant.SecurityContext) string {
	return "pre_aggregations_" + orDefault(sc.Connection)
}

func orDefault(s string) string {
	if s == "" {
		return defaultBucket
	}
	return s
}
