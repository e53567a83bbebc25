package robot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticSecrets(t *testing.T) {
	s := StaticSecrets{"robot@edi.example.com": "hunter2"}

	pw, err := s.Password("edi.example.com", "robot")
	require.NoError(t, err)
	require.Equal(t, "hunter2", pw)

	_, err = s.Password("edi.example.com", "other")
	require.Error(t, err)
}
