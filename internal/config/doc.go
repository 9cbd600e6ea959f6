/*
Config builds the validated Settings value a feed runs with.

# Module

	config

# Source

	JSON settings file, .env files, TS_ environment variables

# Produce

	config.Settings
*/
package config
