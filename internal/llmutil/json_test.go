package llmutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tradedesk/internal/llmutil"
)

func TestStripCodeFenceRemovesFence(t *testing.T) {
	in := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, llmutil.StripCodeFence(in))
}

func TestStripCodeFenceLeavesPlainJSONAlone(t *testing.T) {
	in := `{"a": 1}`
	assert.Equal(t, in, llmutil.StripCodeFence(in))
}
