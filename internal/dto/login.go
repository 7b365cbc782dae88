package dto

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginStep1Result is either RequiresOTP or *TokenResponse.
type LoginStep1Result interface {
	loginStep1()
}

// RequiresOTP is returned when a challenge was issued; no token yet.
type RequiresOTP struct {
	RequiresOTP bool   `json:"requires_otp"`
	MaskedEmail string `json:"masked_email"`
}

func (RequiresOTP) loginStep1() {}

type VerifyOTPRequest struct {
	Username string `json:"username"`
	OTP      string `json:"otp"`
}

type ResendOTPRequest struct {
	Username string `json:"username"`
}
