/*
Barsource loads stored bars for one symbol and session in a single bulk read.

# Module
  - source: opaque per-symbol store (memory, json, parquet, pebble, postgres)
  - loader: validates, sorts, filters to RTH and reports anomalies
  - series: immutable ordered bars handed to the aligner and the feed

# Source
  - historical bar files and databases, resolved by locator

# Produce
  - Series per symbol, Report of ops-worthy anomalies

Duplicate or malformed bars fail the load. Bars outside the session window are
dropped and reported.
*/
package barsource
