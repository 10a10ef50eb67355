package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) regrade(attemptID int) error {
	summary, err := cli.quizSvc.RegradeAttempt(context.Background(), attemptID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "attempt %d: %s (%s%%)\n", summary.AttemptID, summary.Score, summary.Percentage)
	return nil
}
