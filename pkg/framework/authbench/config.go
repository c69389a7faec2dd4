/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authbench

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/attestra/authbench/pkg/authenticator"
)

// Config is the file form of the framework options.
type Config struct {
	ChallengeTTLMS int      `mapstructure:"challengeTTLms"`
	SessionTTLMS   int      `mapstructure:"sessionTTLms"`
	Authenticators []string `mapstructure:"authenticators"`
	MaxConcurrency int      `mapstructure:"maxConcurrency"`
	LogLevel       string   `mapstructure:"logLevel"`
}

// ParseConfig decodes a config document. The document goes through YAML into a
// generic map and then through a weakly typed mapstructure decode, so YAML and
// JSON both parse and scalar types are coerced.
func ParseConfig(data []byte) (*Config, error) {
	var raw map[string]interface{}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// Options converts the config into framework options. Zero values contribute no
// option, so the framework defaults apply.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.ChallengeTTLMS > 0 {
		opts = append(opts, WithChallengeTTL(time.Duration(c.ChallengeTTLMS)*time.Millisecond))
	}

	if c.SessionTTLMS > 0 {
		opts = append(opts, WithSessionTTL(time.Duration(c.SessionTTLMS)*time.Millisecond))
	}

	if len(c.Authenticators) > 0 {
		kinds := make([]authenticator.Kind, 0, len(c.Authenticators))

		for _, name := range c.Authenticators {
			kind, err := authenticator.ParseKind(name)
			if err != nil {
				return nil, err
			}

			kinds = append(kinds, kind)
		}

		opts = append(opts, WithAuthenticators(kinds...))
	}

	if c.MaxConcurrency > 0 {
		opts = append(opts, WithMaxConcurrency(c.MaxConcurrency))
	}

	if c.LogLevel != "" {
		opts = append(opts, WithLogLevel(c.LogLevel))
	}

	return opts, nil
}
