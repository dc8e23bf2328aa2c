package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{"課題1（締切6/20）", "課題1"},
		{"課題1", "課題1"},
		{" 第 3 回 レポート (再提出可) ", "第3回レポート"},
		{"【重要】小テスト（第２回）", "小テスト"},
		{"Quiz ３ (Chapter (2))", "quiz3"},
		{"ＡＢＣ 課題", "abc課題"},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, NormalizeTitle(test.in), test.in)
	}
}

func TestBestMatch(t *testing.T) {
	candidates := []string{
		"資料ダウンロード",
		"課題10",
		"課題1",
		"課題1 解説",
	}

	require.Equal(t, 2, BestMatch("課題1（締切6/20）", candidates))
	require.Equal(t, 1, BestMatch("課題10 (締切7/1)", candidates))
	require.Equal(t, -1, BestMatch("期末試験", candidates))
	require.Equal(t, -1, BestMatch("（注意）", candidates))
}

func TestBestMatchPrefersLongestPartial(t *testing.T) {
	candidates := []string{
		"第3回",
		"第3回レポート課題",
		"レポート",
	}
	// no exact match: the target is contained in the second candidate
	require.Equal(t, 1, BestMatch("第3回レポート", candidates))
	// target contains two candidates; the longer overlap wins
	require.Equal(t, 0, BestMatch("第3回 小テスト", candidates))
}

func TestMatchName(t *testing.T) {
	keywords := []string{"課題", "レポート", "Quiz"}
	require.True(t, MatchName("第1回 課題", keywords))
	require.True(t, MatchName("Weekly quiz", keywords))
	require.False(t, MatchName("講義資料", keywords))
}
