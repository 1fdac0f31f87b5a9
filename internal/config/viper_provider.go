package config

import (
	"context"
	"strings"

	"github.com/spf13/viper"
)

// ViperProvider reads settings from a YAML file. Keys are the lower-case
// form of the environment names, for example:
//
//	database_url: postgres://readonly@db/profitpulse
//	translate_timeout: 20s
type ViperProvider struct {
	v      *viper.Viper
	loaded bool
	err    error
}

// NewViperProvider loads configFile. An empty path looks for gateway.yaml in
// the working directory. A missing file leaves the provider unavailable.
func NewViperProvider(configFile string) *ViperProvider {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	p := &ViperProvider{v: v}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			p.err = err
		}
		return p
	}
	p.loaded = true
	return p
}

// Err returns the error hit while reading an explicitly named file
func (p *ViperProvider) Err() error {
	return p.err
}

// GetSecret looks the key up in the file
func (p *ViperProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.v.GetString(strings.ToLower(key)), nil
}

// Name returns the provider name
func (p *ViperProvider) Name() string {
	return "file:" + p.v.ConfigFileUsed()
}

// IsAvailable reports whether a config file was read
func (p *ViperProvider) IsAvailable(ctx context.Context) bool {
	return p.loaded
}
