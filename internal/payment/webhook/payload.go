package webhook

import (
	"encoding/json"
	"net/url"
	"strings"
)

// ExtractPaymentID reads the gateway payment id from a notification. The
// query string wins over the body; both accept data.id and id.
func ExtractPaymentID(query url.Values, body []byte) string {
	for _, key := range []string{"data.id", "id"} {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		ID   json.RawMessage `json:"id"`
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if v := rawID(payload.Data.ID); v != "" {
		return v
	}
	return rawID(payload.ID)
}

// rawID accepts both "123" and 123.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func maskPayload(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	maskMap(obj)
	masked, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	return masked
}

func maskMap(m map[string]any) {
	for k, v := range m {
		switch strings.ToLower(k) {
		case "card", "payer", "identification", "phone", "additional_info":
			m[k] = "***"
		default:
			if nested, ok := v.(map[string]any); ok {
				maskMap(nested)
			} else if arr, ok := v.([]any); ok {
				for _, item := range arr {
					if itemMap, ok := item.(map[string]any); ok {
						maskMap(itemMap)
					}
				}
			}
		}
	}
}
