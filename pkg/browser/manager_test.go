package browser

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManagerOutput(t *testing.T) {
	m := NewSessionManager()
	assert.Equal(t, io.Discard, m.output)

	var buf bytes.Buffer
	m.SetOutput(&buf)
	assert.Same(t, &buf, m.output)

	m.SetOutput(nil)
	assert.Equal(t, io.Discard, m.output)
}

func TestSessionManagerRequiresInitialize(t *testing.T) {
	m := NewSessionManager()
	_, err := m.StartSession("feed", SessionOptions{Headless: true})
	require.Error(t, err)
	assert.Empty(t, m.ListSessions())
}
