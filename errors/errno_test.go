package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/dargueta/fatx/errors"
	"github.com/stretchr/testify/assert"
)

func TestFatxErrorWithMessage(t *testing.T) {
	newErr := errors.ErrNotFound.WithMessage("BAR.BIN")
	assert.Equal(t, "no such file or directory: BAR.BIN", newErr.Error())
	assert.ErrorIs(t, newErr, errors.ErrNotFound)
}

func TestFatxErrorWrapError(t *testing.T) {
	cause := stderrors.New("short read")
	newErr := errors.ErrDeviceIO.WrapError(cause)

	assert.Equal(t, "device I/O error: short read", newErr.Error())
	assert.ErrorIs(t, newErr, cause)
	assert.ErrorIs(t, newErr, errors.ErrDeviceIO)
}

func TestFatxErrorChainedMessages(t *testing.T) {
	newErr := errors.ErrOutOfSpace.WithMessage("need 3 clusters").WithMessage("write_file")
	assert.Equal(
		t,
		"no space left on device: need 3 clusters: write_file",
		newErr.Error(),
	)
	assert.ErrorIs(t, newErr, errors.ErrOutOfSpace)
}
