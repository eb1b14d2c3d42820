package eeg

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for payloads that are not a sample or a chunk.
var ErrMalformed = errors.New("eeg: malformed payload")

// decodePayload parses one MQTT payload into samples of exactly channels
// values each.
func decodePayload(data []byte, channels int) ([][]float64, error) {
	var one []float64
	if err := json.Unmarshal(data, &one); err == nil {
		s, err := trim(one, channels)
		if err != nil {
			return nil, err
		}
		return [][]float64{s}, nil
	}

	var chunk [][]float64
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(chunk) == 0 {
		return nil, fmt.Errorf("%w: empty chunk", ErrMalformed)
	}
	out := make([][]float64, 0, len(chunk))
	for _, row := range chunk {
		s, err := trim(row, channels)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func trim(sample []float64, channels int) ([]float64, error) {
	if len(sample) < channels {
		return nil, fmt.Errorf("%w: %d channels, need %d", ErrMalformed, len(sample), channels)
	}
	return sample[:channels:channels], nil
}
