// Package config resolves careflow's layered configuration.
//
// Values merge with clear precedence:
//  1. Command-line flags (highest priority)
//  2. CAREFLOW_* environment variables
//  3. careflow.yaml in the working directory
//  4. ~/.config/careflow/config.yaml
//  5. Built-in defaults (lowest priority)
//
// # Basic Usage
//
//	resolver := config.NewCareflowResolver(".")
//	cfg := resolver.Resolve()
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	addr := cfg.Get(config.KeyListenAddr)
//	timeout, _ := cfg.Duration(config.KeyGateTimeout)
//
// # Environment Variables
//
// Each key maps to an uppercased CAREFLOW_ variable:
//
//	CAREFLOW_LISTEN_ADDR=:9090   # sets "listen_addr"
//	CAREFLOW_STORE=redis         # sets "store"
//
// # Sources
//
// Each resolved value tracks where it came from (default, global,
// local, env, flag) for `careflow config list` style output. Unknown
// keys in config files are ignored with a warning rather than failing
// startup.
package config
