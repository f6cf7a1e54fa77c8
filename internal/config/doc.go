// Package config loads the runtime configuration shared by the query
// responder and the price publisher: a JSON file, an optional .env file and
// the process environment for secrets.
package config
