/*
Align pairs every primary bar with the latest bar of each context symbol at or before it.

# Module

	align

# Source

	barsource.Series per context symbol

# Produce

	model.ContextBars per primary bar
*/
package align
