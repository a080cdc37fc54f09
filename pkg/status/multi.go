package status

import "github.com/elodin/bridge/pkg/autosave"

type multiView []autosave.StatusView

// Multi forwards each update to every non-nil view in order.
func Multi(views ...autosave.StatusView) autosave.StatusView {
	out := make(multiView, 0, len(views))
	for _, view := range views {
		if view != nil {
			out = append(out, view)
		}
	}
	return out
}

func (m multiView) Update(state autosave.State, message string, diag *autosave.Diagnostics) {
	for _, view := range m {
		view.Update(state, message, diag)
	}
}
