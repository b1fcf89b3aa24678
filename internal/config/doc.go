// Package config loads the scenesync YAML configuration file.
//
// The file is located by the --config flag or, failing that, the
// SCENESYNC_CONFIG environment variable. Without either, defaults are
// used. Unknown keys are rejected so that typos surface at startup.
//
//	server:
//	  address: ":3760"
//	  http_address: ":8080"
//	  session_code: ""
//	  max_message_size: 524288000
//	  write_timeout: 10s
//	log:
//	  level: info
//	  format: text
package config
