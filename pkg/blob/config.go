// Package blob writes JSON-lines pages to a blob store under deterministic paths
package blob

import (
	"errors"
	"fmt"
)

// Sink kinds
const (
	KindAzure = "azure"
	KindS3    = "s3"
	KindFS    = "fs"
)

var (
	// ErrUnknownKind is returned for an unsupported storage kind
	ErrUnknownKind = errors.New("storage kind must be azure, s3 or fs")
	// ErrAzureAccountRequired is returned when neither an account nor a connection string is set
	ErrAzureAccountRequired = errors.New("azure storage account or connection string is required")
	// ErrContainerRequired is returned when no container or bucket is configured
	ErrContainerRequired = errors.New("storage container is required")
	// ErrS3EndpointRequired is returned when the S3 endpoint is missing
	ErrS3EndpointRequired = errors.New("s3 endpoint is required")
	// ErrS3CredentialsRequired is returned when S3 credentials are missing
	ErrS3CredentialsRequired = errors.New("s3 access key and secret are required")
	// ErrFSRootRequired is returned when the filesystem sink has no root
	ErrFSRootRequired = errors.New("fs root is required")
)

// Config selects and configures the blob sink
type Config struct {
	Kind      string      `yaml:"kind" default:"azure"`
	Container string      `yaml:"container" default:"raw"`
	Azure     AzureConfig `yaml:"azure"`
	S3        S3Config    `yaml:"s3"`
	FS        FSConfig    `yaml:"fs"`
}

// AzureConfig holds Azure Blob Storage settings
type AzureConfig struct {
	Account          string `yaml:"account"`
	ConnectionString string `yaml:"connectionString"`
}

// S3Config holds settings for any S3-compatible store
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	Region          string `yaml:"region"`
	UseSSL          bool   `yaml:"useSSL" default:"true"`
}

// FSConfig holds the local filesystem sink root
type FSConfig struct {
	Root string `yaml:"root" default:"./data"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Container == "" {
		return ErrContainerRequired
	}

	switch c.Kind {
	case KindAzure:
		if c.Azure.ConnectionString == "" && c.Azure.Account == "" {
			return ErrAzureAccountRequired
		}
	case KindS3:
		if c.S3.Endpoint == "" {
			return ErrS3EndpointRequired
		}
		if c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
			return ErrS3CredentialsRequired
		}
	case KindFS:
		if c.FS.Root == "" {
			return ErrFSRootRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}

	return nil
}
