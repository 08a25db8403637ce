package domain

// Role is the access level attached to a user account. The protocol only
// recognizes the two values below; anything else fails login.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether the role is one the login path accepts.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is a stored credential record. Passwords are opaque strings compared
// byte-for-byte; hashing is out of scope for this service.
type User struct {
	Username string
	Password string
	Role     Role
}

// ForecastEntry is one day of a forecast timeline. Order is significant and
// must be preserved end to end.
type ForecastEntry struct {
	Day         string `json:"day"`
	Temperature int    `json:"temperature"`
}

// WeatherRecord holds the observed conditions and forecast for one location.
type WeatherRecord struct {
	Location       string          `json:"location"`
	CurrentWeather string          `json:"currentWeather"`
	Temperature    float64         `json:"temperature"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	Forecast       []ForecastEntry `json:"forecast"`
}
