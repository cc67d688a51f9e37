package exitcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	assert.Equal(t, "Success", Name(Success))
	assert.Equal(t, "Failure", Name(Failure))
	assert.Equal(t, "unknown", Name(42))
}
