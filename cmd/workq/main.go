// Command workq runs job queue workers and administers a job store.
//
//	workq worker --store redis --dsn redis://localhost:6379/0 --api-addr :8080
//	workq enqueue send-email '{"to":"a@example.com","subject":"hi"}'
//	workq dlq list
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
