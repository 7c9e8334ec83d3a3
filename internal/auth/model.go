package auth

// SessionUser is the user shape returned by register and login.
type SessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type Session struct {
	User SessionUser
	TokenPair
}

// Identity is what the guard attaches to an authenticated request.
type Identity struct {
	UserID string
	Role   string
}

type userResponse struct {
	User SessionUser `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}
