package cli

import (
	"fmt"
	"runtime"
)

func goVersion() string { return runtime.Version() }

func platformString() string { return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH) }
