// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/oidc-webapp/jwt"
)

// ResourceConfig is the resource server's configuration.
type ResourceConfig struct {
	Logging

	ListenAddr string `env:"RESOURCE_LISTEN_ADDR" envDefault:":5001" validate:"required"`

	// Issuer is the expected "iss" of access tokens.  Keys are fetched from
	// JWKSURL, or found through the issuer's discovery document when it's
	// empty.
	Issuer         string   `env:"RESOURCE_ISSUER" validate:"required,url"`
	JWKSURL        string   `env:"RESOURCE_JWKS_URL" validate:"omitempty,url"`
	Audiences      []string `env:"RESOURCE_AUDIENCE" envSeparator:","`
	SigningAlgs    []string `env:"RESOURCE_SIGNING_ALGS" envSeparator:"," envDefault:"RS256" validate:"required"`
	ProviderCAFile string   `env:"PROVIDER_CA_FILE" validate:"omitempty,file"`
}

// LoadResource loads the env files, see LoadEnvFiles, then parses and
// validates the environment.
func LoadResource(envFiles ...string) (*ResourceConfig, error) {
	const op = "config.LoadResource"
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := ParseResource(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// ParseResource parses and validates environ, or the process environment
// when environ is nil.
func ParseResource(environ map[string]string) (*ResourceConfig, error) {
	var c ResourceConfig
	var merr *multierror.Error
	if err := parse(&c, environ); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := checkAlgs("RESOURCE_SIGNING_ALGS", c.SigningAlgs); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validator returns a jwt.Validator using the configured key set.
func (c *ResourceConfig) Validator(ctx context.Context) (*jwt.Validator, error) {
	const op = "ResourceConfig.Validator"
	var ca string
	if c.ProviderCAFile != "" {
		b, err := os.ReadFile(c.ProviderCAFile)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read PROVIDER_CA_FILE: %w", op, err)
		}
		ca = string(b)
	}
	var (
		ks  jwt.KeySet
		err error
	)
	switch c.JWKSURL {
	case "":
		ks, err = jwt.NewOIDCDiscoveryKeySet(ctx, c.Issuer, ca)
	default:
		ks, err = jwt.NewJSONWebKeySet(ctx, c.JWKSURL, ca)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	v, err := jwt.NewValidatorWithOptions([]jwt.KeySet{ks}, []jwt.Option{jwt.WithNormalizedAudiences()})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// Expected returns the claims access tokens must carry.
func (c *ResourceConfig) Expected() jwt.Expected {
	algs := make([]jwt.Alg, 0, len(c.SigningAlgs))
	for _, a := range c.SigningAlgs {
		algs = append(algs, jwt.Alg(a))
	}
	return jwt.Expected{
		Issuer:            c.Issuer,
		Audiences:         c.Audiences,
		SigningAlgorithms: algs,
	}
}
