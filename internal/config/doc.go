// Package config provides configuration management for reporunner.
//
// Configuration is loaded and merged in the following order, with later
// sources overriding earlier ones:
//
//  1. Default configuration (built into the binary)
//  2. User configuration (~/.config/reporunner/config.yaml)
//  3. Project configuration (.reporunner.yaml inside the target repository)
//  4. Explicit file passed via --config
//
// The configuration file uses YAML format:
//
//	mode: full            # or "fast"
//	timeoutSeconds: 600
//	maxRetries: 3
//	ports:
//	  defaults:
//	    backend: 8000
//	    frontend: 3000
//	    db: 5432
//	  fallbackStart: 8000
//	  fallbackEnd: 8100
//	  allowTerminate: false
//	health:
//	  intervalSeconds: 2
//	  attempts: 5
//	  probeTimeoutSeconds: 5
//	advisor:
//	  enabled: true
//	  apiKeyEnv: OPENAI_API_KEY
//	  model: gpt-4o-mini
package config
