/*
Health reports feed state transitions and emits heartbeats while a run is active.

# Module

	health

# Source

	controller state transitions, clock ticks

# Produce

	ops.event state_change, health.heartbeat
*/
package health
