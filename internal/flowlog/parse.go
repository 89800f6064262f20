package flowlog

import (
	"regexp"
	"strconv"
)

// SampleFields is the number of numeric tokens a message must carry.
const SampleFields = 6

// numberPattern matches an optionally signed decimal with an optional exponent.
var numberPattern = regexp.MustCompile(`[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)

// Sample is the numeric content of one telemetry message, in the order the
// sensor reports it: raw frequency, flow and volume followed by their
// filtered counterparts.
type Sample struct {
	FreqRaw  float64 `json:"freq_raw"`
	FlowRaw  float64 `json:"flow_raw"`
	VolRaw   float64 `json:"vol_raw"`
	FreqFilt float64 `json:"freq_filt"`
	FlowFilt float64 `json:"flow_filt"`
	VolFilt  float64 `json:"vol_filt"`
}

// Values returns the sample as a positional tuple.
func (s Sample) Values() [SampleFields]float64 {
	return [SampleFields]float64{s.FreqRaw, s.FlowRaw, s.VolRaw, s.FreqFilt, s.FlowFilt, s.VolFilt}
}

// ParseMessage extracts the first six numeric tokens of msg. It returns
// false when the message carries fewer than six tokens or a token cannot
// be converted; extra trailing tokens are ignored.
func ParseMessage(msg string) (Sample, bool) {
	tokens := NumericTokens(msg)
	if len(tokens) < SampleFields {
		return Sample{}, false
	}

	var v [SampleFields]float64
	for i := 0; i < SampleFields; i++ {
		f, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			return Sample{}, false
		}
		v[i] = f
	}

	return Sample{
		FreqRaw:  v[0],
		FlowRaw:  v[1],
		VolRaw:   v[2],
		FreqFilt: v[3],
		FlowFilt: v[4],
		VolFilt:  v[5],
	}, true
}

// NumericTokens returns every numeric token in msg in order of appearance.
// Unsigned digits glued to the end of a word, such as the 2 in "flow2",
// belong to the field name and are not tokens.
func NumericTokens(msg string) []string {
	idx := numberPattern.FindAllStringIndex(msg, -1)
	out := make([]string, 0, len(idx))
	for _, m := range idx {
		start, end := m[0], m[1]
		if start > 0 && isUnsignedStart(msg[start]) && isWordByte(msg[start-1]) {
			continue
		}
		out = append(out, msg[start:end])
	}
	return out
}

func isUnsignedStart(c byte) bool {
	return c != '-' && c != '+'
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
