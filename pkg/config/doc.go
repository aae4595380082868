// Package config loads typed configuration structs from environment
// variables using struct tags, with optional .env file support for local
// development.
//
// Each configuration type is parsed once per process and cached, so
// packages can independently call Load for their own Config structs
// without re-reading the environment.
//
//	var cfg deadletter.RedisConfig
//	config.MustLoad(&cfg)
package config
