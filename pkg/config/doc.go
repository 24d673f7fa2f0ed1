// Package config loads jobkit configuration.
//
// Process settings come from environment variables, optionally seeded from
// .env files, and are parsed with github.com/caarlos0/env/v11 into tagged
// structs. Each struct type is parsed once and cached; Reset clears the cache
// in tests. Queue topology lives in a YAML file read with LoadYAML.
//
//	var cfg queue.Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
package config
