package config

import (
	_ "embed"
)

// health checker defaults
//
//go:embed default.config.yml
var DefaultConfigYml string
