//go:build linux || darwin

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".airflow-process-exporter", "config.yaml"),
		"/etc/airflow-process-exporter/exporter.yaml",
	}
}
