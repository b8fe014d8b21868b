package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Data freshness
	MetricTileFreshness  = "tiles.data_age_seconds"
	MetricRestyleLatency = "restyler.restyle_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricStylesCompiled = "business.styles_compiled"
	MetricTilesStyled    = "business.tiles_styled"
)
