package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate проверяет теги validate и правила, которые тегами не выразить.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	switch cfg.Blob.Type {
	case "s3":
		if err := cfg.Blob.S3.Validate(); err != nil {
			return fmt.Errorf("blob.s3: %w", err)
		}
	case "localfs":
		if cfg.Blob.LocalFS.Root == "" {
			return errors.New("blob.localfs.root is required")
		}
	}

	if cfg.Metadata.Type == "postgres" && (cfg.Database.Host == "" || cfg.Database.Name == "") {
		return errors.New("database: host and name are required for postgres metadata")
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	msgs := make([]error, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value()))
	}
	return errors.Join(msgs...)
}
