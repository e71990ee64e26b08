// Package fakebin writes stand-in executables for tests that shell out.
package fakebin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// ffmpegScript copies the input to the output for a repair and appends the
// listed files for a concat. Inputs whose name contains "corrupt" fail the
// way ffmpeg does on a truncated file.
const ffmpegScript = `#!/usr/bin/env bash
echo "$*" >> "$(dirname "$0")/calls.log"
out="${@: -1}"
in=""
concat=0
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift ;;
    concat) concat=1 ;;
  esac
  shift
done
case "$in" in
  *corrupt*) echo "moov atom not found" >&2; exit 1 ;;
esac
if [ "$concat" = 1 ]; then
  : > "$out"
  while IFS= read -r line; do
    f=$(printf '%s' "$line" | sed -e "s/^file '//" -e "s/'\$//")
    cat "$f" >> "$out" || exit 1
  done < "$in"
else
  cp "$in" "$out"
fi
`

// FFmpeg installs a fake ffmpeg in a temp dir and returns its path along
// with a function listing the argument lines it has been called with.
func FFmpeg(t testing.TB) (string, func() []string) {
	t.Helper()
	return Script(t, "ffmpeg", ffmpegScript)
}

// Script installs an executable named name with the given body.
func Script(t testing.TB, name, body string) (string, func() []string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))

	calls := func() []string {
		data, err := os.ReadFile(filepath.Join(dir, "calls.log"))
		if err != nil {
			return nil
		}
		return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	}
	return path, calls
}
