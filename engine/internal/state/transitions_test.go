package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionDenyReasonSameValueIsNoop(t *testing.T) {
	require.Empty(t, TransitionDenyReason(SPSInProcess, SPSInProcess, Behavior{}))
}

func TestTransitionDenyReasonHappyPath(t *testing.T) {
	require.Empty(t, TransitionDenyReason(SPSNeedsProcessing, SPSInProcess, Behavior{}))
	require.Empty(t, TransitionDenyReason(SPSInProcess, SPSProcessed, Behavior{}))
	require.Empty(t, TransitionDenyReason(SPSInProcess, SPSAborted, Behavior{}))
	require.Empty(t, TransitionDenyReason(SPSNeedsProcessing, SPSLost, Behavior{}))
	require.Empty(t, TransitionDenyReason(SPSInProcess, SPSLost, Behavior{}))
	require.Empty(t, TransitionDenyReason(SPSNeedsProcessing, SPSSkipped, Behavior{}))
}

func TestTransitionDenyReasonReturnToNeedsProcessingGated(t *testing.T) {
	require.NotEmpty(t, TransitionDenyReason(SPSInProcess, SPSNeedsProcessing, Behavior{}))
	require.Empty(t, TransitionDenyReason(SPSInProcess, SPSNeedsProcessing, Behavior{AllowReturnToNeedsProcessing: true}))
}

func TestTransitionDenyReasonRequireInProcessGate(t *testing.T) {
	require.NotEmpty(t, TransitionDenyReason(SPSNeedsProcessing, SPSProcessed, Behavior{RequireInProcessBeforeProcessComplete: true}))
	require.Empty(t, TransitionDenyReason(SPSNeedsProcessing, SPSProcessed, Behavior{RequireInProcessBeforeProcessComplete: false}))
}

func TestTransitionDenyReasonIllegal(t *testing.T) {
	require.NotEmpty(t, TransitionDenyReason(SPSProcessed, SPSInProcess, Behavior{}))
	require.NotEmpty(t, TransitionDenyReason(SPSAborted, SPSProcessed, Behavior{}))
}
