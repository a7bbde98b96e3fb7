package auth

// Backend routes used by the session actions, relative to the API root.
const (
	RouteLogin       = "/auth/login"
	RouteLogout      = "/auth/logout"
	RouteVerifyEmail = "/auth/verify-email"
	RouteVerifyToken = "/auth/verify-token"

	RouteActivate       = "/users/activate"
	RouteResetPassword  = "/users/reset-password"
	RouteUpdatePassword = "/users/update-password"
)
