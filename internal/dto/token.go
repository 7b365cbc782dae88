package dto

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	TokenType    string    `json:"token_type"`
	User         *UserView `json:"user,omitempty"`
}

func (*TokenResponse) loginStep1() {}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AccessTokenResponse answers a refresh. RefreshToken is set only when the
// refresh token was rotated.
type AccessTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
