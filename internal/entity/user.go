package entity

// UserLoginData is the identity carried by a verified access token. The raw
// token is kept so uploads can be made on the user's behalf.
type UserLoginData struct {
	ID          string
	Username    string
	Email       string
	AccessToken string
}
