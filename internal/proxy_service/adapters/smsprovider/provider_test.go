package smsprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsProviderByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "flowroute", want: "flowroute"},
		{name: "twilio", want: "twilio"},
		{name: "mock", want: "mock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(Config{Name: tt.name, Timeout: time.Second}, testLogger())
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.GetName())
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Name: "carrier-pigeon"}, testLogger())
	assert.Error(t, err)
}

func TestMockProvider_RecordsMessages(t *testing.T) {
	p := NewMockProvider(testLogger(), false, 0)
	require.NoError(t, p.Dispatch(context.Background(), "1", "2", "first"))
	require.NoError(t, p.Dispatch(context.Background(), "3", "2", "second"))

	sent := p.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "first", sent[0].Body)
	assert.Equal(t, "3", sent[1].To)
	assert.NotEqual(t, sent[0].ID, sent[1].ID)
}

func TestMockProvider_Failure(t *testing.T) {
	p := NewMockProvider(testLogger(), true, 0)
	assert.Error(t, p.Dispatch(context.Background(), "1", "2", "body"))
	assert.Empty(t, p.Sent())
}

func TestMockProvider_DelayHonoursContext(t *testing.T) {
	p := NewMockProvider(testLogger(), false, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Dispatch(ctx, "1", "2", "body")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
