package submission

import "context"

// Labels tag journaled transactions with the lifecycle run and mint they belong to.
type Labels struct {
	RunID string
	Mint  string
}

type labelsKey struct{}

// WithLabels returns a context whose submissions are journaled with l.
func WithLabels(ctx context.Context, l Labels) context.Context {
	return context.WithValue(ctx, labelsKey{}, l)
}

func labelsFrom(ctx context.Context) Labels {
	l, _ := ctx.Value(labelsKey{}).(Labels)
	return l
}
