package ebook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunToolNotFound(t *testing.T) {
	tool := &Tool{metaBin: "definitely-not-a-real-binary-1b2c3d", coverTimeout: time.Second}
	err := tool.ExtractCover(context.Background(), "in.epub", "out.jpg")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRunTimeout(t *testing.T) {
	tool := NewTool()
	_, err := tool.run(context.Background(), 50*time.Millisecond, "sleep", "5")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRunExitError(t *testing.T) {
	tool := &Tool{metaBin: "false", coverTimeout: time.Second}
	err := tool.ExtractCover(context.Background(), "in.epub", "out.jpg")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "false", exitErr.Tool)
}
