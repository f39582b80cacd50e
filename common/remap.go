package common

// Remap maps pixel codes From[i] to To[i]. Codes not listed in From are mapped to Default.
type Remap struct {
	From    []int `json:"from"`
	To      []int `json:"to"`
	Default int   `json:"default"`
}

// Apply remaps one code
func (r Remap) Apply(v int) int {
	for i, f := range r.From {
		if f == v {
			return r.To[i]
		}
	}
	return r.Default
}
