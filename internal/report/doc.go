// Package report persists run reports and the standing list of items that
// could not be matched.
//
// Every run writes report-<timestamp>.json and refreshes latest.json in the
// report directory. unmatched.json survives across runs: items are added
// when resolution misses and removed once they resolve.
package report
