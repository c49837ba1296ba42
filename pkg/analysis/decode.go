package analysis

import (
	"encoding/json"

	"github.com/otherjamesbrown/minute-cli/pkg/logging"
)

// DecodeOrFallback parses raw as JSON into T. When the text is not valid
// JSON the fallback value is returned instead and the failure is logged;
// parse failures in analysis steps degrade output, they never abort a run.
func DecodeOrFallback[T any](logger logging.Logger, step, raw string, fallback T) T {
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logger.Warn("discarding unparseable model output",
			logging.F("step", step),
			logging.F("length", len(raw)),
			logging.Err(err))
		return fallback
	}
	return out
}
