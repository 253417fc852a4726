package domain

// Identity is the resolved caller identity shared by the gateway, the HTTP
// surface, and the client SDK. It is a read-only projection: whichever source
// produced it (session record, token claims, backend profile) owns the
// underlying data.
type Identity struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	ProfileImage string `json:"profileImage,omitempty"`
}
