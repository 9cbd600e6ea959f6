/*
Stream serves published feed events to local processes over a Unix domain
socket. Every connection receives the journal record stream: the same framing
the recorder writes to disk, readable with recorder.NewReader.

# Module

	stream

# Source

	bus callbacks

# Produce

	framed records on each accepted socket connection
*/
package stream
