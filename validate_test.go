package pure3270

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUnprotectedFieldsReportsValidatorFailure(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	require.NoError(t, s.InsertText(ctx, "   "))

	failures, err := s.ValidateUnprotectedFields(ctx, Rules{
		0: {Validator: NonBlank},
	})
	require.NoError(t, err)
	require.Len(t, failures, 1)
}

func TestValidateUnprotectedFieldsPassesWhenRulesSatisfied(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	require.NoError(t, s.InsertText(ctx, "42"))

	failures, err := s.ValidateUnprotectedFields(ctx, Rules{
		0: {Validator: IsInteger},
	})
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestValidateUnprotectedFieldsMustChangeAgainstOriginal(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	require.NoError(t, s.InsertText(ctx, "default"))

	failures, err := s.ValidateUnprotectedFields(ctx, Rules{
		0: {MustChange: true, Original: "default", ErrorText: "please change this field"},
	})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "please change this field", failures[0])
}

func TestValidateUnprotectedFieldsIgnoresOutOfRangeIndex(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	failures, err := s.ValidateUnprotectedFields(ctx, Rules{
		5: {Validator: NonBlank},
	})
	require.NoError(t, err)
	assert.Empty(t, failures)
}
