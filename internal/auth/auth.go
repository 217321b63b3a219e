// Package auth gates the interactive UI behind a sign-in step. There are no
// credentials: signing in only records that the user chose to proceed.
package auth

import "sync"

// Gate tracks whether the user has signed in.
type Gate struct {
	mu       sync.RWMutex
	loggedIn bool
}

// Login marks the user as signed in. It is idempotent.
func (g *Gate) Login() {
	g.mu.Lock()
	g.loggedIn = true
	g.mu.Unlock()
}

// LoggedIn reports whether Login has been called.
func (g *Gate) LoggedIn() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loggedIn
}
