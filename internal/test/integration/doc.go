// Package integration holds repository-wide guardrail tests. They load the
// module with go/packages and run under the integration build tag.
package integration
