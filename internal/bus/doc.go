/*
Bus delivers feed events to subscribers synchronously, one event at a time.

# Module

	bus

# Source

	align snapshots, controller ops events, health heartbeats

# Produce

	bar.update, ops.event, health.heartbeat callbacks
*/
package bus
