// Package config loads the document gateway configuration.
//
// Configuration is read from a YAML file. ${VAR} references anywhere in the
// file are replaced with the named environment variable before parsing, so
// secrets can stay out of the file:
//
//	auth:
//	  jwt_secret: "${DOCGW_JWT_SECRET}"
//
// Values not present in the file keep the defaults returned by Default.
// Durations are written as Go duration strings ("30s", "2m") and parsed
// after unmarshaling. Load validates the result and reports the first
// problem it finds.
package config
