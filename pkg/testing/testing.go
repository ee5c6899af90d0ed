package testing

import (
	"os"
	"path/filepath"
	"runtime"
)

// Importing this package for side effects moves the test process to the
// module root, so relative paths (logs/, .env, test databases) resolve the
// same way they do for cmd/server:
//
//	import _ "liyu1981.xyz/proximity-tracker/pkg/testing"
func init() {
	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := os.Chdir(root); err != nil {
		panic(err)
	}
}
