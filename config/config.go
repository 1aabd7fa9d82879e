package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Table struct {
	Schema          string `yaml:"schema"`
	Name            string `yaml:"name"`
	PartitionColumn string `yaml:"partition_column"`
}

type Config struct {
	Postgres struct {
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		User        string `yaml:"user"`
		Password    string `yaml:"password"`
		Database    string `yaml:"database"`
		Slot        string `yaml:"slot"`
		Publication string `yaml:"publication"`
	} `yaml:"postgres"`

	Tables []Table `yaml:"tables"`

	Warehouse struct {
		Path    string `yaml:"path"`
		Buckets int32  `yaml:"buckets"`

		S3 struct {
			Bucket string `yaml:"bucket"`
			Prefix string `yaml:"prefix"`
			Region string `yaml:"region"`
		} `yaml:"s3"`
	} `yaml:"warehouse"`

	Proxy struct {
		Port int `yaml:"port"`
	} `yaml:"proxy"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PartitionColumns maps "schema.table" to the configured partition
// column; tables without one are unpartitioned.
func (c *Config) PartitionColumns() map[string]string {
	cols := make(map[string]string)
	for _, t := range c.Tables {
		if t.PartitionColumn != "" {
			cols[fmt.Sprintf("%s.%s", t.Schema, t.Name)] = t.PartitionColumn
		}
	}
	return cols
}
