package mirror

import "context"

// Noop stands in when no mirror is configured. Local state stays the source
// of truth; rows simply remain unsynced.
type Noop struct{}

func (Noop) PushBalances(context.Context) error { return nil }
func (Noop) PushLedger(context.Context) error   { return nil }
func (Noop) PushIncomes(context.Context) error  { return nil }
