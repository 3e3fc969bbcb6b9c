// Package config loads and saves the shellies configuration file.
//
// The file is YAML and lives in the platform configuration directory:
//   - Linux: $XDG_CONFIG_HOME/shellies/config.yaml or $HOME/.config/shellies/config.yaml
//   - macOS: $HOME/.config/shellies/config.yaml
//   - Windows: %LOCALAPPDATA%\shellies\config.yaml
//
// Load reads it with viper, so every scalar key can be overridden from the
// environment: log_level becomes SHELLIES_LOG_LEVEL and mqtt.host becomes
// SHELLIES_MQTT_HOST. Save writes it back with yaml.v3 through a temporary
// file and a rename.
//
// # Example
//
//	version: 1
//	server:
//	  enabled: true
//	  port: 8765
//	discovery:
//	  mdns: true
//	  static:
//	    - id: shellyplus1-a8032ab12345
//	      address: 192.168.1.20
//	devices:
//	  - id: shellyplus1-a8032ab12345
//	    password: secret
//	  - id: shellyplusplugs-b0b21c112233
//	    exclude: true
package config
