package flows

import (
	"github.com/MrEthical07/tokenguard/jwt"
)

// ValidateDeps captures access token validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
}

// ValidateResult returns either the verified claims or the parse error.
type ValidateResult struct {
	Claims *jwt.AccessClaims
	Err    error
}

// RunValidate verifies an access token. It is stateless: access tokens are
// never looked up in a store.
func RunValidate(tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return ValidateResult{Err: err}
	}
	return ValidateResult{Claims: claims}
}
