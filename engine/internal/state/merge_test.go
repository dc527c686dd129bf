package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeIdempotent(t *testing.T) {
	for _, c := range []SPSCode{SPSNeedsProcessing, SPSInProcess, SPSProcessed, SPSSkipped, SPSLost} {
		v := Live(c)
		require.True(t, Merge(v, v).Equal(v))
	}
}

func TestMergeUndefinedAbsorbs(t *testing.T) {
	v := Live(SPSInProcess)
	require.True(t, Merge(v, Live(SPSUndefined)).Equal(v))
	require.True(t, Merge(Live(SPSUndefined), v).Equal(v))
}

func TestMergePseudoCollapsesExceptProcessStepCompleted(t *testing.T) {
	v := Live(SPSInProcess)
	require.True(t, Merge(v, Pseudo(PseudoCreated)).Equal(v))
	require.True(t, Merge(v, Pseudo(PseudoMoved)).Equal(v))
	require.True(t, Merge(v, Pseudo(PseudoRemoved)).Equal(v))

	// ProcessStepCompleted ranks between InProcess and Processed.
	require.True(t, Merge(Live(SPSInProcess), Pseudo(PseudoProcessStepCompleted)).Equal(Pseudo(PseudoProcessStepCompleted)))
	require.True(t, Merge(Live(SPSProcessed), Pseudo(PseudoProcessStepCompleted)).Equal(Live(SPSProcessed)))
}

func TestMergeSkippedOutranksProcessed(t *testing.T) {
	require.True(t, Merge(Live(SPSProcessed), Live(SPSSkipped)).Equal(Live(SPSSkipped)))
	require.True(t, Merge(Live(SPSSkipped), Live(SPSProcessed)).Equal(Live(SPSSkipped)))
}

func TestMergeMonotonicity(t *testing.T) {
	order := []SPSCode{SPSNeedsProcessing, SPSInProcess, SPSProcessed, SPSStopped, SPSRejected, SPSSkipped, SPSAborted, SPSLost}
	for i := range order {
		for j := range order {
			result := Merge(Live(order[i]), Live(order[j]))
			hi := order[i]
			if j > i {
				hi = order[j]
			}
			require.Equal(t, hi, result.LiveCode())
		}
	}
}
