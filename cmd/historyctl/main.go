// Command historyctl runs the issue history engine's operations by hand:
// rebuilds, live syncs, timelines, sprint burndowns and Jira ingests.
package main

import (
    "fmt"
    "os"
)

func main() {
    if err := rootCmd().Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}
