package remotefs

// credentials keeps the secret for the lifetime of a client so it can be
// wiped on Disconnect.
type credentials struct {
	username string
	password []byte
}

func newCredentials(username, password string) *credentials {
	return &credentials{
		username: username,
		password: []byte(password),
	}
}

func (c *credentials) Password() string {
	return string(c.password)
}

// Clear overwrites the password with zeros and drops it.
func (c *credentials) Clear() {
	secureWipe(c.password)
	c.password = nil
}

func secureWipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
