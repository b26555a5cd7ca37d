package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opspilot/opspilot/pkg/models"
)

// defaultConfigs returns the built-in per-domain agent configuration.
// Caller-supplied overrides are overlaid on top of these at registration.
func defaultConfigs() map[models.DomainType]map[string]any {
	return map[models.DomainType]map[string]any{
		models.DomainReliability: {
			"monitoring_interval":  "60s",
			"error_rate_threshold": 5.0,
			"latency_threshold":    2000.0,
			"auto_remediation":     true,
		},
		models.DomainSecurity: {
			"scan_cadence":       "24h",
			"severity_threshold": "high",
			"auto_patch":         false,
		},
		models.DomainPerformance: {
			"optimization_cadence":    "6h",
			"cpu_threshold":           80.0,
			"memory_threshold":        85.0,
			"response_time_threshold": 1000.0,
		},
		models.DomainDeployment: {
			"default_strategy":         "rolling",
			"rollback_error_threshold": 5.0,
			"approval_required":        false,
		},
	}
}

// LoadDefaultsFile reads a YAML file of per-domain config overrides and
// merges it over the built-in defaults. Unknown domains in the file are
// rejected. The file has the shape:
//
//	reliability:
//	  error_rate_threshold: 2.5
//	security:
//	  auto_patch: true
func LoadDefaultsFile(path string) (map[models.DomainType]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read defaults file: %w", err)
	}

	var overrides map[string]map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse defaults file: %w", err)
	}

	merged := defaultConfigs()
	for domain, values := range overrides {
		d := models.DomainType(domain)
		if !d.Valid() {
			return nil, fmt.Errorf("defaults file: unknown domain %q", domain)
		}
		for k, v := range values {
			merged[d][k] = v
		}
	}
	return merged, nil
}

// mergeConfig overlays caller overrides onto a copy of the domain defaults.
func mergeConfig(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
