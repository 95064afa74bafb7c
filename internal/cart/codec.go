package cart

import (
	"encoding/json"
	"fmt"
)

const codecVersion = 1

type persistedCart struct {
	Version int    `json:"version"`
	Lines   []Line `json:"lines"`
}

func encodeLines(lines []Line) (string, error) {
	raw, err := json.Marshal(persistedCart{Version: codecVersion, Lines: lines})
	if err != nil {
		return "", fmt.Errorf("encoding cart: %w", err)
	}
	return string(raw), nil
}

func decodeLines(payload string) ([]Line, error) {
	var stored persistedCart
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	if stored.Version != codecVersion {
		return nil, fmt.Errorf("unsupported cart payload version %d", stored.Version)
	}
	seen := make(map[LineKey]struct{}, len(stored.Lines))
	for _, line := range stored.Lines {
		if err := line.Validate(); err != nil {
			return nil, fmt.Errorf("stored line invalid: %w", err)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("stored line quantity %d invalid", line.Quantity)
		}
		if _, dup := seen[line.LineKey]; dup {
			return nil, fmt.Errorf("stored lines repeat identity %q", line.SKU)
		}
		seen[line.LineKey] = struct{}{}
	}
	return stored.Lines, nil
}
