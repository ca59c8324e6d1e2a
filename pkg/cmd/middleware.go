package cmd

// Middleware wraps a command (logging, gating, metrics).
type Middleware func(Command) Command

// Apply wraps c so that mws[0] runs first.
func Apply(c Command, mws ...Middleware) Command {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}
