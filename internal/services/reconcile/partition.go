package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/portico/internal/models"
)

// Partition splits a read payload into active and historical records.
// Every element of the list lands in exactly one of the two sets, in input order.
// Status is normalised (missing or unknown becomes Waiting) and routing depends only
// on whether the trimmed exit time is empty.
func Partition(raw []byte) (active, historical []models.Withdrawal, err error) {
	var items []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &items); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrMalformedSnapshot, err)
	}
	if items == nil {
		// "null" decodes without error but is not a list
		return nil, nil, fmt.Errorf("%w: payload is not a list", models.ErrMalformedSnapshot)
	}

	active = make([]models.Withdrawal, 0, len(items))
	historical = make([]models.Withdrawal, 0)
	for _, item := range items {
		w := decodeRecord(item)
		if w.IsHistorical() {
			historical = append(historical, w)
		} else {
			active = append(active, w)
		}
	}
	return active, historical, nil
}

// decodeRecord maps one stored row. It never fails: unreadable fields are left blank.
func decodeRecord(item json.RawMessage) models.Withdrawal {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		fields = nil
	}

	w := models.Withdrawal{
		ID:          textField(fields, "id"),
		Name:        strings.TrimSpace(textField(fields, "name")),
		Course:      strings.TrimSpace(textField(fields, "course")),
		Reason:      strings.TrimSpace(textField(fields, "reason")),
		Status:      models.NormalizeStatus(textField(fields, "status")),
		ExitTime:    strings.TrimSpace(textField(fields, "exitTime")),
		Responsible: textField(fields, "responsable", "responsible"),
	}

	if rawTS, ok := fields["timestamp"]; ok {
		var ts models.FlexTimestamp
		if err := json.Unmarshal(rawTS, &ts); err == nil {
			w.CreatedAt = int64(ts)
		}
	}

	if w.Responsible == "" {
		w.Responsible = models.UnattributedResponsible
	}
	if w.ID == "" && w.CreatedAt > 0 {
		w.ID = w.Key()
	}
	return w
}

// textField returns the first present key as text. Numbers and booleans are kept
// in their JSON spelling; objects, arrays and null read as empty.
func textField(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		switch raw[0] {
		case '"':
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				return s
			}
		case '{', '[', 'n':
			continue
		default:
			if f, err := strconv.ParseFloat(string(raw), 64); err == nil && f == float64(int64(f)) {
				return strconv.FormatInt(int64(f), 10)
			}
			return string(raw)
		}
	}
	return ""
}
