package ledger

// SeedAccount is a test helper that installs an account state directly when using the in-memory ledger.
func SeedAccount(l Ledger, acct Account) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		seeded := acct
		mem.accounts[acct.ClientID] = &seeded
	}
}
