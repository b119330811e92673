package auth

// Verifier answers credential match queries.
type Verifier interface {
	Verify(username, password string) bool
}

// StaticCredentials is an in-memory username -> password table loaded from
// configuration. It is static for the lifetime of the process; there are no
// add or remove operations.
type StaticCredentials map[string]string

// Verify reports whether the username exists and its stored password equals
// the given password. The match is exact and case-sensitive; an unknown
// username is simply false, not an error.
func (c StaticCredentials) Verify(username, password string) bool {
	stored, ok := c[username]
	return ok && stored == password
}
