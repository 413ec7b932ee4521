package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, tp)
}
