// Package contracts ships the JSON Schemas of the events the service
// publishes.
package contracts

import "embed"

//go:embed events/v1/*.json
var EventsV1 embed.FS
