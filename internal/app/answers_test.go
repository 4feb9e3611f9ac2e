package app_test

import (
	"fmt"
	"sync"
	"testing"

	"quiz-attempt/internal/app"
	"quiz-attempt/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestAnswerStoreOverwritesAndSnapshots(t *testing.T) {
	store := app.NewAnswerStore()
	store.Set("q1", domain.OptionAnswer{OptionID: "o1"})
	store.Set("q1", domain.OptionAnswer{OptionID: "o2"})
	store.Set("q2", domain.BoolAnswer{Value: true})

	require.Equal(t, 2, store.AnsweredCount())
	answer, ok := store.Get("q1")
	require.True(t, ok)
	require.Equal(t, "o2", answer.Wire())

	snap := store.Snapshot()
	store.Set("q3", domain.TextAnswer{Text: "func"})
	require.Equal(t, 2, snap.Len(), "snapshot must not see later writes")
	_, ok = snap.Get("q3")
	require.False(t, ok, "snapshot leaked q3")

	entries := snap.Entries(threeQuestionQuiz().Questions)
	require.Equal(t, []domain.AnswerEntry{{QuestionID: "q1", Answer: "o2"}, {QuestionID: "q2", Answer: "True"}}, entries)
}

func TestAnswerStoreConcurrentAccess(t *testing.T) {
	store := app.NewAnswerStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Set(fmt.Sprintf("q%d", j%10), domain.TextAnswer{Text: fmt.Sprint(i)})
				_ = store.AnsweredCount()
				_ = store.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 10, store.AnsweredCount())
}

func TestComputeProgress(t *testing.T) {
	cases := []struct {
		answered, total, want int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 8, 13},
	}
	for _, tc := range cases {
		got := app.ComputeProgress(tc.answered, tc.total)
		require.Equal(t, tc.want, got.Percent, "progress(%d/%d)", tc.answered, tc.total)
	}
	require.Equal(t, 2, app.ComputeProgress(1, 3).Unanswered())
}

func TestNavigatorBounds(t *testing.T) {
	nav := app.NewNavigator(3)

	require.Equal(t, 0, nav.Previous())
	idx, atEnd := nav.Next()
	require.Equal(t, 1, idx)
	require.False(t, atEnd)
	idx, atEnd = nav.Next()
	require.Equal(t, 2, idx)
	require.False(t, atEnd)
	idx, atEnd = nav.Next()
	require.Equal(t, 2, idx, "next at the end stays put")
	require.True(t, atEnd)

	require.ErrorIs(t, nav.JumpTo(3), domain.ErrIndexOutOfRange)
	require.ErrorIs(t, nav.JumpTo(-1), domain.ErrIndexOutOfRange)
	require.NoError(t, nav.JumpTo(0))
	require.Equal(t, 0, nav.Current())

	empty := app.NewNavigator(0)
	_, atEnd = empty.Next()
	require.True(t, atEnd, "empty navigator must report end")
}
