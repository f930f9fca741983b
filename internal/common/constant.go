package common

// AuthHeaderName is the HTTP header used to carry the instance access token
// on push/pull requests.
const AuthHeaderName = "Authorization"

// BearerPrefix is the scheme prefix expected in AuthHeaderName.
const BearerPrefix = "Bearer "
