// SPDX-License-Identifier: Apache-2.0

// Command cfgcenterd runs a root configuration center (C9) against a
// filesystem or git-backed repository, serving namespaces described by a
// config file and exposing Prometheus metrics.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
