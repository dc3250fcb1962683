package shared

import (
	"strings"
	"time"
)

// ParseTimeNullable 解析可选时间，支持 RFC3339 与 "2006-01-02 15:04:05"（本地时区）。
func ParseTimeNullable(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
