package outcome

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdbvalue"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
		want Result
	}{
		{nil, KindHarness, ResultPass},
		{Failf("x"), KindAssertion, ResultFail},
		{fmt.Errorf("wrapped: %w", Skip("no FPU")), KindNotApplicable, ResultNotApplicable},
		{&gdbvalue.CannotAccessError{Address: 4}, KindProtocol, ResultException},
		{fmt.Errorf("spike: %w", ErrReadiness), KindReadiness, ResultException},
		{errors.New("boom"), KindHarness, ResultException},
	}
	for _, tc := range cases {
		if tc.err != nil {
			assert.Equal(t, tc.kind, KindOf(tc.err), "%v", tc.err)
		}
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
	assert.True(t, ResultNotApplicable.Good())
	assert.False(t, ResultException.Good())
}

func TestAssertions(t *testing.T) {
	assert.NoError(t, Equal(3, 3))
	err := Equal(uint64(0x10), uint64(0x11), "s0")
	var f *Failed
	assert.True(t, errors.As(err, &f))
	assert.Equal(t, "0x10 != 0x11: s0", f.Message)

	assert.Error(t, NotEqual("a", "a"))
	assert.NoError(t, In("Continuing", "Continuing.\n"))
	assert.Error(t, NotIn("Unknown", "Unknown thread 3."))
	assert.NoError(t, Greater(2, 1))
	assert.Error(t, Less(2, 1))
	assert.Error(t, True(false))
	assert.NoError(t, Regex("Breakpoint 2, main", `Breakpoint \d+`))
	assert.Equal(t, KindAssertion, KindOf(Regex("x", "y")))
	assert.Equal(t, "not applicable: no FPU", Skip("no FPU").Error())
}
