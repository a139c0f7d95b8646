package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, Success},
		{"bare code", ErrDirectory, Directory},
		{"wrapped", fmt.Errorf("create folder: %w", ErrDirectory), Directory},
		{"double wrapped", fmt.Errorf("job 4: %w", fmt.Errorf("x: %w", ErrFileExists)), FileExists},
		{"logon failure", fmt.Errorf("logon bob: %w", ErrLogonFailure), LogonFailure},
		{"unknown", errors.New("boom"), CanNotComplete},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Of(tt.err))
		})
	}
}

func TestCodeError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "insufficient buffer", InsufficientBuffer.Error())
	assert.Equal(t, "error 4242", Code(4242).Error())
}
