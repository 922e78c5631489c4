package consumer

type Option func(*Consumer)

// ConnectionName sets the connection name shown in the broker's management UI.
func ConnectionName(name string) Option {
	return func(c *Consumer) {
		c.connectionName = name
	}
}
