package model

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testProjectIdentifier = "3F2504E0-4F89-11D3-9A0C-0305E82C3301"

var generatedSubdomainPattern = regexp.MustCompile(`^[a-z0-9\x{0621}-\x{064A}-]+$`)

func TestGenerateSubdomainTransliteratesLatinName(testingT *testing.T) {
	subdomain := GenerateSubdomain("My Café", testProjectIdentifier)
	require.Equal(testingT, "my-cafe-3f2504e0", subdomain)
	require.Regexp(testingT, `^my-caf(e|é)?-[a-z0-9]{8}$`, subdomain)
}

func TestGenerateSubdomainKeepsArabicLetters(testingT *testing.T) {
	subdomain := GenerateSubdomain("مطعم  الورد!!", testProjectIdentifier)
	require.Equal(testingT, "مطعم-الورد-3f2504e0", subdomain)
	require.Regexp(testingT, generatedSubdomainPattern, subdomain)
}

func TestGenerateSubdomainIsDeterministic(testingT *testing.T) {
	first := GenerateSubdomain("Bakery -- & Co.", testProjectIdentifier)
	second := GenerateSubdomain("Bakery -- & Co.", testProjectIdentifier)
	require.Equal(testingT, first, second)
	require.Equal(testingT, "bakery-co-3f2504e0", first)
}

func TestGenerateSubdomainTruncatesLongNames(testingT *testing.T) {
	subdomain := GenerateSubdomain(strings.Repeat("long name ", 20), testProjectIdentifier)
	base := strings.TrimSuffix(subdomain, "-3f2504e0")
	require.LessOrEqual(testingT, len([]rune(base)), subdomainBaseMaxRunes)
	require.False(testingT, strings.HasSuffix(base, "-"))
	require.Regexp(testingT, generatedSubdomainPattern, subdomain)
}

func TestGenerateSubdomainFallsBackWhenNameHasNoLetters(testingT *testing.T) {
	require.Equal(testingT, "site-3f2504e0", GenerateSubdomain("!!! ***", testProjectIdentifier))
}

func TestNormalizeSubdomain(testingT *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{name: "already clean", input: "my-shop", expected: "my-shop"},
		{name: "uppercase and spaces", input: "  My Shop  ", expected: "my-shop"},
		{name: "arabic", input: "متجري", expected: "متجري"},
		{name: "only symbols", input: "$$$", err: ErrInvalidSubdomain},
		{name: "empty", input: "", err: ErrInvalidSubdomain},
	}
	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(t *testing.T) {
			normalized, err := NormalizeSubdomain(testCase.input)
			if testCase.err != nil {
				require.ErrorIs(t, err, testCase.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, testCase.expected, normalized)
		})
	}
}

func TestWithCollisionSuffixDiffersFromBase(testingT *testing.T) {
	moment := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	suffixed := WithCollisionSuffix("my-shop", moment)
	require.NotEqual(testingT, "my-shop", suffixed)
	require.True(testingT, strings.HasPrefix(suffixed, "my-shop-"))
	require.Regexp(testingT, `^my-shop-[a-z0-9]{1,6}$`, suffixed)

	later := WithCollisionSuffix("my-shop", moment.Add(time.Millisecond))
	require.NotEqual(testingT, suffixed, later)
}

func TestWithCollisionSuffixRespectsMaximumLength(testingT *testing.T) {
	suffixed := WithCollisionSuffix(strings.Repeat("a", subdomainMaxRunes), time.Now())
	require.LessOrEqual(testingT, len([]rune(suffixed)), subdomainMaxRunes)
}
