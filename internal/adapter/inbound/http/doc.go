// Package http serves the gateway's operational endpoints: Prometheus
// metrics on /metrics and a JSON health report on /health. The MCP
// protocol itself is served over stdio only.
package http
