package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlexTimestamp is a ms-since-epoch instant as written by the spreadsheet store.
// The store emits JSON numbers, numeric strings or ISO-8601 date strings depending
// on how the cell was formatted; null and "" decode to 0.
type FlexTimestamp int64

// UnmarshalJSON accepts every representation the store produces.
func (t *FlexTimestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = 0
		return nil
	}

	if data[0] != '"' {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		ms, err := msFromFloat(f)
		if err != nil {
			return err
		}
		*t = FlexTimestamp(ms)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	ms, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = FlexTimestamp(ms)
	return nil
}

// ParseTimestamp parses a decimal ms string or an RFC 3339 instant.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return msFromFloat(f)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("timestamp: unrecognised value %q", s)
	}
	return parsed.UnixMilli(), nil
}

// msFromFloat truncates a numeric timestamp, rejecting values int64 cannot hold.
func msFromFloat(f float64) (int64, error) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= -math.MinInt64 {
		return 0, fmt.Errorf("timestamp: %v out of range", f)
	}
	return int64(f), nil
}
