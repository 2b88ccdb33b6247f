// Package httpx builds the HTTP clients used to reach the rating sources.
//
// The transport rotates User-Agent strings from a pool, applies caller
// supplied default headers and cookies, paces requests per host with a token
// bucket, and retries idempotent requests a bounded number of times on
// transport errors and 5xx gateway responses. Response classification is left
// to the callers so each source can interpret status codes and soft blocks on
// its own terms.
package httpx
