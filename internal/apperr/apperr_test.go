package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisioningErrorClassification(t *testing.T) {
	cause := fmt.Errorf("bind: %w", ErrUnauthorized)
	err := fmt.Errorf("start: %w", &ProvisioningError{
		Step:      "bind",
		Partial:   true,
		StreamID:  "s1",
		IngestKey: "k1",
		Err:       &CredentialError{ChannelID: "UC1", Op: "use", Err: cause},
	})

	var perr *ProvisioningError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Partial)
	assert.Equal(t, "k1", perr.IngestKey)

	var cerr *CredentialError
	require.True(t, errors.As(err, &cerr), "credential error must stay reachable through the provisioning error")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestPersistenceNil(t *testing.T) {
	assert.NoError(t, Persistence("logs", "append", nil))

	err := Persistence("logs", "append", errors.New("dial tcp: refused"))
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "logs", perr.Collection)
}

func TestLaunchErrorMessage(t *testing.T) {
	err := &EncoderLaunchError{Reason: AlreadyRunning}
	assert.Equal(t, "encoder launch: alreadyRunning", err.Error())

	err = &EncoderLaunchError{Reason: BinaryMissing, Err: errors.New(`exec: "ffmpeg": executable file not found in $PATH`)}
	assert.Contains(t, err.Error(), "binaryMissing")
}
