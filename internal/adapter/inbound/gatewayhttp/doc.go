// Package gatewayhttp is the net/http inbound adapter: it terminates
// client connections, converts wire requests into gateway.Request values,
// drives them through a gateway.Pipeline, and renders the resulting
// gateway.Result (or, for WebSocket upgrades, a relayed session) back to
// the client.
package gatewayhttp
