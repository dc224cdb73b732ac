package s3

import (
	"errors"
	"fmt"
)

const (
	DefaultEndpoint = "https://storage.yandexcloud.net"
	DefaultRegion   = "ru-central1"
	// DefaultPartSize: минимальный размер части multipart-загрузки в S3.
	DefaultPartSize = 5 * 1024 * 1024
)

type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	PartSize        int64  `mapstructure:"part_size"`
}

// Validate проверяет, что все необходимые поля заполнены.
func (c *Config) Validate() error {
	var errs []error
	if c.AccessKeyID == "" {
		errs = append(errs, errors.New("access_key_id is required"))
	}
	if c.SecretAccessKey == "" {
		errs = append(errs, errors.New("secret_access_key is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if c.PartSize != 0 && c.PartSize < DefaultPartSize {
		errs = append(errs, fmt.Errorf("part_size must be at least %d bytes", DefaultPartSize))
	}
	return errors.Join(errs...)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Endpoint == "" {
		out.Endpoint = DefaultEndpoint
	}
	if out.Region == "" {
		out.Region = DefaultRegion
	}
	if out.PartSize == 0 {
		out.PartSize = DefaultPartSize
	}
	return out
}
