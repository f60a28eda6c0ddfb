package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractQuotedText(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
		ok      bool
	}{
		{"double quotes", `create a task "write the report"`, "write the report", true},
		{"single quotes", "add 'buy milk' to my list", "buy milk", true},
		{"first of two", `rename "old" to "new"`, "old", true},
		{"none", "no quotes here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractQuotedText(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractHashtags(t *testing.T) {
	tags := extractHashtags("file this under #work and #deep-focus please")
	assert.Equal(t, []string{"work", "deep-focus"}, tags)

	assert.Nil(t, extractHashtags("nothing tagged"))
}

func TestExtractDuration(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    time.Duration
		ok      bool
	}{
		{"minutes", "start a 25 minute timer", 25 * time.Minute, true},
		{"mins", "focus for 45 mins", 45 * time.Minute, true},
		{"short m", "give me 90m", 90 * time.Minute, true},
		{"hours", "block 2 hours for this", 2 * time.Hour, true},
		{"short h", "work for 1h", time.Hour, true},
		{"none", "start a timer", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractDuration(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDate(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	today, ok := extractDate("finish this today", now)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC), today)

	tomorrow, ok := extractDate("due tomorrow", now)
	assert.True(t, ok)
	assert.Equal(t, 11, tomorrow.Day())

	nextWeek, ok := extractDate("push it to next week", now)
	assert.True(t, ok)
	assert.Equal(t, 17, nextWeek.Day())

	explicit, ok := extractDate("deadline is 2025-04-01", now)
	assert.True(t, ok)
	assert.Equal(t, time.April, explicit.Month())
	assert.Equal(t, 1, explicit.Day())

	_, ok = extractDate("sometime soon", now)
	assert.False(t, ok)

	_, ok = extractDate("bad date 2025-13-40", now)
	assert.False(t, ok)
}

func TestExtractPriority(t *testing.T) {
	tests := []struct {
		message string
		want    int
		ok      bool
	}{
		{"this is urgent", 3, true},
		{"need it asap", 3, true},
		{"high priority item", 2, true},
		{"this is important", 2, true},
		{"normal task", 1, true},
		{"low priority cleanup", 0, true},
		{"do it whenever", 0, true},
		{"just a task", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, ok := extractPriority(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTitleFromVerbPhrase(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"add a task to water the plants", "water the plants"},
		{"remind me to call the dentist.", "call the dentist"},
		{"create task to review the budget!", "review the budget"},
		{"hello there", ""},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, titleFromVerbPhrase(tt.message))
		})
	}
}

func TestPermissionCovers(t *testing.T) {
	readOnly := NewPermissionSet(PermReadOnly)
	assert.True(t, readOnly.Covers([]PermissionLevel{PermReadOnly}))
	assert.False(t, readOnly.Covers([]PermissionLevel{PermModifyTasks}))

	combined := NewPermissionSet(PermReadOnly, PermTimerControl)
	assert.True(t, combined.Covers([]PermissionLevel{PermTimerControl}))
	assert.False(t, combined.Covers([]PermissionLevel{PermTimerControl, PermModifyTasks}))

	assert.True(t, FullAccess().Covers([]PermissionLevel{PermModifyTasks, PermTimerControl}))
	assert.True(t, FullAccess().Covers(nil))
}
