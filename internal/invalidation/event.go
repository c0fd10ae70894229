// Package invalidation carries the recompile notifications emitted after a
// configuration run so that serving nodes can drop state derived from the
// previous artifacts.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

// RecompileEvent announces that the artifacts of Layers were regenerated
// for Service. Checksum fingerprints the emitted content.
type RecompileEvent struct {
	Version  int       `json:"version"`
	Service  string    `json:"service"`
	Layers   []string  `json:"layers"`
	Checksum string    `json:"checksum"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

func (e RecompileEvent) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Service {
	case "WMS", "WCS":
	default:
		return fmt.Errorf("service must be WMS|WCS")
	}
	if len(e.Layers) == 0 {
		return fmt.Errorf("layers is required")
	}
	for _, l := range e.Layers {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("layers must not contain blank names")
		}
	}
	if len(e.Checksum) != 16 || strings.Trim(e.Checksum, "0123456789abcdef") != "" {
		return fmt.Errorf("checksum must be 16 lowercase hex digits")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Key identifies the event for de-duplication.
func (e RecompileEvent) Key() string { return e.Service + ":" + e.Checksum }
