package session

import "context"

// Credentials is the raw key/value material collected from a sign-in form.
type Credentials map[string]string

// User is the identity returned by a successful authorization.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Provider is a tagged variant: concrete provider kinds are distinct types
// and the dispatch site switches over them exhaustively, so adding a kind is
// a compile-time visible change rather than a string comparison.
type Provider interface {
	ProviderID() string
}

// CredentialsProvider authenticates with caller-collected credentials.
// Authorize returns (nil, nil) for invalid credentials; errors are reserved
// for transport or infrastructure failures.
type CredentialsProvider struct {
	ID        string
	Authorize func(ctx context.Context, creds Credentials) (*User, error)
}

// ProviderID implements Provider.
func (p CredentialsProvider) ProviderID() string { return p.ID }

// OAuthProvider reserves the variant for federated sign-in. Dispatch rejects
// it until an implementation lands.
type OAuthProvider struct {
	ID string
}

// ProviderID implements Provider.
func (p OAuthProvider) ProviderID() string { return p.ID }
