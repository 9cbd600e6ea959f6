/*
Feed drives one session: it loads bars, aligns context and publishes the result,
or, in paper and live mode, reports readiness and keeps the heartbeat alive.

# Module

	feed

# Source

	config.Settings, barsource.Source, session.Calendar

# Produce

	bar.update, ops.event, health.heartbeat through bus.Publisher
*/
package feed
