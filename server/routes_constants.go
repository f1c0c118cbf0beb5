package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteLogin    = "/login"
	RouteLogout   = "/logout"
	RouteRegister = "/register"

	// User management routes (require a session)
	RouteIndex       = "/{$}"
	RouteUsers       = "/users"
	RouteUsersNew    = "/users/new"
	RouteUsersDelete = "/users/delete/{id}"
	RouteUsersEdit   = "/users/edit/{id}"
	RouteUsersUpdate = "/users/update/{id}"

	// Static Asset Routes (patterns)
	RouteStatic = "/static/{file}"

	// Health
	RouteHealth = "/healthz"
)

const (
	usersEditPrefix   = "/users/edit/"
	usersUpdatePrefix = "/users/update/"
)
