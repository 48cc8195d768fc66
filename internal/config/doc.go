// Package config provides configuration loading and validation for the dubbing merge service.
// Configuration is read from YAML; secrets and deployment paths can be overridden from the
// environment (ASSESSMENT_API_KEY, ASSESSMENT_ENDPOINT, KAFKA_BROKERS, KAFKA_TOPIC, DATA_DIR,
// DATABASE_PATH), which cmd/server also fills from a .env file.
package config
