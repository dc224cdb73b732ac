package auth

import "time"

// Config описывает проверку токенов, выпущенных внешним сервисом идентификации.
type Config struct {
	Secret string `mapstructure:"secret" validate:"required,min=32"`
	// Issuer, если задан, должен совпадать с claim iss.
	Issuer string `mapstructure:"issuer"`
	// TokenTTL: срок жизни токенов, которые выпускает команда kurodrive token.
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}
