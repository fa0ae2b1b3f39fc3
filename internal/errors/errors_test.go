package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSetsCategoryAndContext(t *testing.T) {
	t.Parallel()

	err := Newf("server rejected note: %s", "invalidparameter").
		Category(CategoryWebService).
		Component("notes").
		Context("errorcode", "invalidparameter").
		Build()

	require.Error(t, err)
	assert.Equal(t, "notes", err.GetComponent())
	assert.Equal(t, string(CategoryWebService), err.GetCategory())
	assert.Equal(t, "invalidparameter", err.GetContext()["errorcode"])
}

func TestIsCategoryMatchesWrappedErrors(t *testing.T) {
	t.Parallel()

	base := Newf("connection refused").Category(CategoryTransport).Build()
	wrapped := fmt.Errorf("calling notes_create_notes: %w", base)

	assert.True(t, IsTransport(wrapped))
	assert.False(t, IsWebService(wrapped))
}

func TestDetectCategoryHeuristics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
		want ErrorCategory
	}{
		{"connection refused", "dial tcp: connection refused", CategoryTransport},
		{"timeout", "context deadline exceeded", CategoryTimeout},
		{"validation", "invalid course id", CategoryValidation},
		{"database", "sql: no rows in result set", CategoryDatabase},
		{"unclassified", "something odd happened", CategoryGeneric},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Newf("%s", tt.msg).Build()
			assert.Equal(t, tt.want, err.Category)
		})
	}
}

func TestContextCopyDoesNotAliasInternalMap(t *testing.T) {
	t.Parallel()

	err := Newf("boom").Context("key", "value").Build()
	ctx := err.GetContext()
	ctx["key"] = "mutated"

	assert.Equal(t, "value", err.GetContext()["key"])
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	err := Newf("boom").Priority("urgent-ish").Build()
	assert.Equal(t, PriorityMedium, err.GetPriority())
}
