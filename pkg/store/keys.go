package store

import (
	"fmt"
	"strings"
)

// Keys for report action collections follow the layout
// report:<reportID>:actions. The value is a JSON object mapping the
// action's sequence number (as a decimal string) to the action itself.

const (
	keyPrefix  = "report:"
	keySuffix  = ":actions"
	maxIDBytes = 256
)

// ActionsKey builds the collection key for a report's action log.
func ActionsKey(reportID string) (string, error) {
	if reportID == "" {
		return "", fmt.Errorf("empty report id")
	}
	if len(reportID) > maxIDBytes {
		return "", fmt.Errorf("report id too long")
	}
	if strings.Contains(reportID, ":") {
		return "", fmt.Errorf("invalid report id %q: must not contain ':'", reportID)
	}
	return keyPrefix + reportID + keySuffix, nil
}

// ReportIDFromKey extracts the report identifier from an actions
// collection key. It returns "" when the key is not an actions key.
func ReportIDFromKey(key string) string {
	if !strings.HasPrefix(key, keyPrefix) || !strings.HasSuffix(key, keySuffix) {
		return ""
	}
	id := key[len(keyPrefix) : len(key)-len(keySuffix)]
	if id == "" || strings.Contains(id, ":") {
		return ""
	}
	return id
}

// ActionsPrefix returns the key prefix under which all report action
// collections live; subscriptions typically watch this prefix.
func ActionsPrefix() string { return keyPrefix }
