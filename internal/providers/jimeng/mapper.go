package jimeng

import (
	"strings"

	"golang.org/x/text/language"
)

// Status is the canonical four-state task model.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Provider spellings that mean "processing".
var processingSynonyms = map[string]struct{}{
	"processing": {},
	"running":    {},
	"in_queue":   {},
	"generating": {},
}

// Classification is the mapper output for one provider payload.
type Classification struct {
	Status Status
	Raw    string
	Result *GenerationResult
	// Unknown is set when Raw is none of the documented spellings.
	Unknown bool
}

// Classify maps a provider status and payload into the canonical model.
// A structured result wins over a raw video URL. "done" without any media is
// kept non-terminal so the caller polls again.
func Classify(data *EnvelopeData) Classification {
	if data == nil {
		return Classification{Status: StatusProcessing}
	}
	raw := strings.ToLower(strings.TrimSpace(data.Status))
	c := Classification{Raw: raw}

	switch raw {
	case string(StatusDone):
		if res := extractResult(data); res != nil {
			c.Status = StatusDone
			c.Result = res
			return c
		}
		c.Status = StatusProcessing
	case string(StatusFailed):
		c.Status = StatusFailed
	case string(StatusPending):
		c.Status = StatusPending
	default:
		// synonyms and unknown strings alike stay non-terminal
		c.Status = StatusProcessing
		c.Unknown = raw != "" && !isSynonym(raw)
	}
	return c
}

// isSynonym reports whether raw is a known provider spelling of processing.
func isSynonym(raw string) bool {
	_, ok := processingSynonyms[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

func extractResult(data *EnvelopeData) *GenerationResult {
	if data.Result != nil && strings.TrimSpace(data.Result.URL) != "" {
		res := *data.Result
		res.URL = strings.TrimSpace(res.URL)
		if res.Type == "" {
			res.Type = MediaImage
		}
		return &res
	}
	if url := strings.TrimSpace(data.VideoURL); url != "" {
		return &GenerationResult{Type: MediaVideo, URL: url}
	}
	return nil
}

var displayLanguages = []language.Tag{language.English, language.Chinese}

var displayMatcher = language.NewMatcher(displayLanguages)

var statusMessages = []map[string]string{
	{
		"pending":    "Task submitted",
		"processing": "Processing",
		"running":    "Processing",
		"in_queue":   "Task submitted, waiting in queue",
		"generating": "Generating",
		"done":       "Done",
		"failed":     "Failed",
	},
	{
		"pending":    "任务已提交",
		"processing": "正在处理中",
		"running":    "正在处理中",
		"in_queue":   "任务已提交，排队等待中",
		"generating": "正在处理中",
		"done":       "已完成",
		"failed":     "生成失败",
	},
}

// DisplayText returns the user-facing label for a raw provider status in the
// best matching locale. Unknown statuses are shown as-is.
func DisplayText(raw, locale string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		key = string(StatusProcessing)
	}
	_, idx := language.MatchStrings(displayMatcher, locale)
	if idx < 0 || idx >= len(statusMessages) {
		idx = 0
	}
	if msg, ok := statusMessages[idx][key]; ok {
		return msg
	}
	return raw
}

// LocalizeStatusMessage rewrites a stock status label into locale. Messages
// that are not stock labels, such as expiry notices, are left untouched.
func LocalizeStatusMessage(data *EnvelopeData, locale string) {
	if data == nil || data.StatusMessage == "" {
		return
	}
	key := strings.ToLower(strings.TrimSpace(data.Status))
	for _, labels := range statusMessages {
		if label, ok := labels[key]; ok && label == data.StatusMessage {
			data.StatusMessage = DisplayText(data.Status, locale)
			return
		}
	}
}
