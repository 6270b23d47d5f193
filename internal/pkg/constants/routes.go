package constants

// Static route constants
const (
	APIRoute           = "/api"
	PaddleWebhookRoute = "/api/webhooks/paddle"
)

// Endpoint classes the burst limiter keys on. Each class has its own
// sliding window per account.
const (
	EndpointClassQuery     = "query"
	EndpointClassExport    = "export"
	EndpointClassSentiment = "sentiment"
)
