// Package config loads and validates Agora Core configuration.
//
// Configuration is read from a YAML file, with hardcoded defaults applied
// first and AGORA_* environment variables applied last. Validation runs on
// every load; a config that fails validation never reaches the rest of the
// system.
package config
