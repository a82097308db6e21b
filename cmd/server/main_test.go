package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storekeep/backend/internal/config"
)

func TestValidateSecurityConfigRejectsShortSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	assert.Error(t, err)
}

func TestValidateSecurityConfigAcceptsStrongSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "*"})
	assert.NoError(t, err)
}

func TestValidateSecurityConfigRejectsWildcardOriginInProduction(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		Env:           "production",
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "*",
	})
	assert.Error(t, err)

	err = validateSecurityConfig(config.Config{
		Env:           "production",
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "https://shop.example",
	})
	assert.NoError(t, err)
}
