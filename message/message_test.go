package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCorrelated(t *testing.T) {
	correlated := []Kind{Get, Value, Subscribe, Event, Unsubscribe}
	uncorrelated := []Kind{Set, Push}

	for _, k := range correlated {
		assert.True(t, k.IsCorrelated(), "%s should be correlated", k)
	}
	for _, k := range uncorrelated {
		assert.False(t, k.IsCorrelated(), "%s should not be correlated", k)
	}
}
