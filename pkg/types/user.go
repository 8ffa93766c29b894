package types

// User is an authenticated person using the dashboard. Identity is delegated
// to the OIDC provider so nothing about the user is stored.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Admin bool   `json:"admin"`
}
