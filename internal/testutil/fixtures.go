package testutil

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"testing"
)

// MustFixture loads a file from the testdata directory at the repository
// root and panics on failure.
func MustFixture(relPath string) []byte {
	p := fixturePath(relPath)
	bytes, err := os.ReadFile(p)
	if err != nil {
		panic(fmt.Sprintf("error loading fixture %s: %v", p, err))
	}
	return bytes
}

// Fixture loads a file from the testdata directory at the repository root.
func Fixture(t *testing.T, relPath string) []byte {
	t.Helper()

	p := fixturePath(relPath)
	bytes, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("error loading fixture %s: %v", p, err)
	}

	return bytes
}

func fixturePath(relPath string) string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("error loading caller")
	}
	return path.Join(path.Dir(filename), "../../", "testdata", relPath)
}
