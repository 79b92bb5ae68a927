package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/animus-labs/apideploy/internal/deployer"
	"github.com/animus-labs/apideploy/internal/orchestrator"
	"github.com/animus-labs/apideploy/internal/provider"
)

func printDeploy(w io.Writer, res orchestrator.Result) {
	fmt.Fprintf(w, "deploy %s: %d apis, %d integrations (%s)\n", res.DeployID, len(res.Reports), res.Injectors, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "API\tNAME\tOPERATION\tGATEWAY ID\tSTATUS")
	for _, r := range res.Reports {
		status := "ok"
		if !r.OK() {
			status = "failed: " + r.Code
		}
		gatewayID := r.GatewayID
		if gatewayID == "" {
			gatewayID = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.API, r.Name, operationLabel(r.Operation), gatewayID, status)
	}
	_ = tw.Flush()

	for _, r := range res.Failed() {
		fmt.Fprintf(w, "%s: %v\n", r.API, r.Err)
		if r.Remediation != "" {
			fmt.Fprintf(w, "  hint: %s\n", r.Remediation)
		}
	}
}

func printEntities(w io.Writer, reports []deployer.Report) {
	if len(reports) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tNAME\tOPERATION\tARN")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Kind, r.ID, r.Name, operationLabel(r.Operation), r.ARN)
	}
	_ = tw.Flush()
}

// printRemediation prints one hint per distinct provider failure kind in err.
func printRemediation(w io.Writer, err error) {
	seen := make(map[string]bool)
	for _, e := range flatten(err) {
		hint := provider.Remediation(e)
		if hint == "" || seen[hint] {
			continue
		}
		seen[hint] = true
		fmt.Fprintf(w, "hint: %s\n", hint)
	}
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	if next := errors.Unwrap(err); next != nil {
		if inner := flatten(next); len(inner) > 1 {
			return inner
		}
	}
	return []error{err}
}
