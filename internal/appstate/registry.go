package appstate

// Unsubscribe removes a subscription. It is safe to call more than once.
type Unsubscribe func()

type observer struct {
	id uint64
	fn func(bool)
}

// observers is an ordered callback list with removal by handle.
type observers []observer

func (o *observers) add(id uint64, fn func(bool)) {
	*o = append(*o, observer{id: id, fn: fn})
}

func (o *observers) remove(id uint64) bool {
	for i, ob := range *o {
		if ob.id == id {
			*o = append((*o)[:i:i], (*o)[i+1:]...)
			return true
		}
	}
	return false
}

func (o observers) snapshot() []func(bool) {
	out := make([]func(bool), len(o))
	for i, ob := range o {
		out[i] = ob.fn
	}
	return out
}

func fire(fns []func(bool), v bool) {
	for _, fn := range fns {
		fn(v)
	}
}
