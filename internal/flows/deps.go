package flows

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue    IssueDeps
	Refresh  RefreshDeps
	Login    LoginDeps
	Logout   LogoutDeps
	Validate ValidateDeps
}

// User is the flow-local view of an account.
type User struct {
	ID           string
	Email        string
	Role         string
	PasswordHash string
}
