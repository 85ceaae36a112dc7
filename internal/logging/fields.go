package logging

import "github.com/sirupsen/logrus"

// BaseFields builds the action + config-path fields shared by startup logs.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields builds the ecosystem/package/version/immutable/cache-hit
// fields for a CDN request log line.
func RequestFields(ecosystem, name, version string, immutable, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"ecosystem": ecosystem,
		"package":   name,
		"version":   version,
		"immutable": immutable,
		"cache_hit": cacheHit,
	}
}
