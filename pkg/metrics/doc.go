/*
Package metrics exposes the agent's Prometheus metrics and health endpoints.

Metrics are registered on the default registry at package init. The agent
counts commands by kind and outcome, times each command, tracks how many
containers it manages, and counts snapshot ticks and transport frames.

Health is tracked per component. The control_plane component follows the
websocket connection and the runtime component follows the container
runtime client. /ready answers 200 only once both are registered healthy.

# Endpoints

	/metrics  Prometheus exposition
	/health   overall health, 503 when any component is unhealthy
	/ready    readiness, 503 until control_plane and runtime are healthy
	/live     liveness, always 200

# Usage

	metrics.UpdateComponent(metrics.ComponentRuntime, true, "")
	timer := metrics.NewTimer()
	// ... handle a command
	timer.ObserveDurationVec(metrics.CommandDuration, "run")
	metrics.CommandsTotal.WithLabelValues("run", "started").Inc()
*/
package metrics
