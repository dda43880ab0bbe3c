package nodeid

import "github.com/vk/burstci/internal/model"

// Address is the structured form of an instance identifier.
type Address struct {
	Job  string
	Axes model.Combination
}

// String serializes the Address into its canonical form.
func (a *Address) String() string {
	if a == nil {
		return ""
	}
	return model.InstanceID(a.Job, a.Axes)
}

// Equal reports whether both addresses name the same instance. Axis order
// does not matter.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Job == other.Job && a.Axes.Canonical() == other.Axes.Canonical()
}

// Matches reports whether inst is the instance a names.
func (a *Address) Matches(inst *model.JobInstance) bool {
	return a.Equal(&Address{Job: inst.Template.Name, Axes: inst.Axes})
}
