package models

import "strings"

// NotificationEvent is a raw notification posting as delivered by the
// device callback surface. Key is the OS-level per-posting identifier,
// distinct from the thread bucket key.
type NotificationEvent struct {
	PackageName string   `json:"package_name"`
	Key         string   `json:"key"`
	PostTime    int64    `json:"post_time"`
	Title       string   `json:"title,omitempty"`
	BigTitle    string   `json:"big_title,omitempty"`
	Text        string   `json:"text,omitempty"`
	BigText     string   `json:"big_text,omitempty"`
	SubText     string   `json:"sub_text,omitempty"`
	TextLines   []string `json:"text_lines,omitempty"`
}

// NormalizedTitle returns the first non-blank of (title, big title).
func (e NotificationEvent) NormalizedTitle() string {
	return firstNonBlank(e.Title, e.BigTitle)
}

// NormalizedBody picks the first non-blank candidate in a fixed priority
// order: big text, joined text lines, text, sub text.
func (e NotificationEvent) NormalizedBody() string {
	joined := ""
	if len(e.TextLines) > 0 {
		parts := make([]string, 0, len(e.TextLines))
		for _, l := range e.TextLines {
			if strings.TrimSpace(l) != "" {
				parts = append(parts, strings.TrimSpace(l))
			}
		}
		joined = strings.Join(parts, "\n")
	}
	return firstNonBlank(e.BigText, joined, e.Text, e.SubText)
}

func firstNonBlank(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c)
		}
	}
	return ""
}
