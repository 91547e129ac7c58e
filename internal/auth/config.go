package auth

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	JWTKey string `mapstructure:"JWTKey"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.BindEnv("JWTKey", "JWT_KEY")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if cfg.JWTKey == "" {
		cfg.JWTKey = v.GetString("JWT_KEY")
	}
	if cfg.JWTKey == "" {
		return nil, fmt.Errorf("JWTKey is required")
	}

	return &cfg, nil
}
