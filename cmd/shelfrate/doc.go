// Package main hosts the shelfrate CLI entrypoint and command graph.
//
// The Cobra command tree loads the environment file and configuration once,
// then hands off to the internal packages: enrich for runs, ledger for
// history maintenance, report for the last run summary, and notifications
// for delivery checks. Keep commands thin; behavior belongs in internal/.
package main
