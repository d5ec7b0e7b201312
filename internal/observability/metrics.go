package observability

// MetricKey names an instrument in the registry catalog.
type MetricKey string

const (
	// RED metrics for use cases and the ops HTTP surface.
	MUsecaseRequests     MetricKey = "usecase_requests_total"
	MUsecaseDuration     MetricKey = "usecase_duration_seconds"
	MHTTPRequests        MetricKey = "http_requests_total"
	MHTTPRequestDuration MetricKey = "http_request_duration_seconds"

	// Calls leaving the process: event publication and the Kafka relay.
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MEventPublishFailed      MetricKey = "event_publish_failed_total"

	MLowStockAlerts MetricKey = "low_stock_alerts_total"
)
