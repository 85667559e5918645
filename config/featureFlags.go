package config

import (
	"os"
	"strings"
)

// DoubleEntryModuleAlias is the module alias a business must have enabled for postings to happen.
const DoubleEntryModuleAlias = "double-entry"

// InlineLedgerTasks makes the reconciler execute queued ledger tasks in-process right after commit,
// instead of leaving them to the outbox dispatcher + Pub/Sub worker.
//
// Set via env:
// - LEDGER_TASKS_INLINE=true
func InlineLedgerTasks() bool {
	return boolFromEnv("LEDGER_TASKS_INLINE")
}

// AggregatorBusinessId is the tenant the account-balances command posts for.
//
// Set via env:
// - AGGREGATOR_BUSINESS_ID (default "1")
func AggregatorBusinessId() string {
	v := strings.TrimSpace(os.Getenv("AGGREGATOR_BUSINESS_ID"))
	if v == "" {
		return "1"
	}
	return v
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
