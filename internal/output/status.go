package output

import (
	"context"
	"fmt"
	"time"
)

func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

func PrettyProfileStatus(backend, elapsed, traceSize string) string {
	return fmt.Sprintf("\r%-28s %-22s %-22s",
		fmt.Sprintf("Backend: %s", backend),
		fmt.Sprintf("Elapsed: %s", elapsed),
		fmt.Sprintf("Trace: %s", traceSize),
	)
}
