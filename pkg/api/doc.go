/*
Package api exposes cirrus over HTTP and gRPC for operators and kubelet health checks.

# HTTP

HTTPServer serves a small read-only surface:

	GET /health        overall component health (503 when any is unhealthy)
	GET /ready         readiness of kubernetes, pricing and scheduler
	GET /livez         process liveness
	GET /metrics       Prometheus exposition
	GET /v1/plan       the last scheduling cycle, including its plan summary
	GET /v1/pricing    the current machine type table, ?provider= filters

Every request is counted in cirrus_api_requests_total by route and status.

# gRPC

Server registers the standard grpc.health.v1 service. The empty service name
reports readiness and every component is also served under its own name:

	grpcurl -plaintext -d '{"service":"cirrus.pricing"}' localhost:9090 grpc.health.v1.Health/Check

Statuses are copied from the metrics health registry every few seconds, so
a kubelet grpc check sees the same view as /ready.
*/
package api
