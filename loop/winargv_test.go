package loop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// vectors from the quoting table the implementation documents
func TestQuoteCmdArg(t *testing.T) {
	cases := map[string]string{
		``:               `""`,
		`plain`:          `plain`,
		`hello world`:    `"hello world"`,
		`hello"world`:    `"hello\"world"`,
		`hello""world`:   `"hello\"\"world"`,
		`hello\world`:    `hello\world`,
		`hello\\world`:   `hello\\world`,
		`hello\"world`:   `"hello\\\"world"`,
		`hello\\"world`:  `"hello\\\\\"world"`,
		`hello world\`:   `"hello world\\"`,
		"tab\there":      "\"tab\there\"",
	}
	for in, want := range cases {
		require.Equal(t, want, quoteCmdArg(in), "input %q", in)
	}
}

func TestMakeCommandLine(t *testing.T) {
	require.Equal(t, `prog "a b" c`, makeCommandLine([]string{"prog", "a b", "c"}, false))
	require.Equal(t, `prog a b c`, makeCommandLine([]string{"prog", "a", "b", "c"}, false))
	require.Equal(t, `prog a"b`, makeCommandLine([]string{"prog", `a"b`}, true), "verbatim skips quoting")
}

func TestEnsureRequiredEnv(t *testing.T) {
	getenv := func(name string) string {
		switch name {
		case "SYSTEMROOT":
			return `C:\Windows`
		case "SYSTEMDRIVE":
			return "C:"
		case "TEMP":
			return `C:\Temp`
		}
		return ""
	}

	out := ensureRequiredEnv([]string{"FOO=bar"}, getenv)
	require.Contains(t, out, "FOO=bar")
	require.Contains(t, out, `SYSTEMROOT=C:\Windows`)
	require.Contains(t, out, "SYSTEMDRIVE=C:")
	require.Contains(t, out, `TEMP=C:\Temp`)

	// supplied values win regardless of case
	out = ensureRequiredEnv([]string{"SystemRoot=D:\\Win"}, getenv)
	require.Contains(t, out, "SystemRoot=D:\\Win")
	require.NotContains(t, out, `SYSTEMROOT=C:\Windows`)
}
