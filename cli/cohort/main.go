package main

import (
	"os"

	cohortcmder "github.com/papercomputeco/cohort/cmd/cohort"
)

func main() {
	cmd := cohortcmder.NewCohortCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
