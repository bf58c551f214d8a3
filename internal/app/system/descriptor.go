package system

// Descriptor advertises what a lifecycle service does. It is optional and
// only feeds health output.
type Descriptor struct {
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// WithCapabilities returns a copy of the descriptor with additional
// capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}

// DescriptorProvider is implemented by services that describe themselves.
type DescriptorProvider interface {
	Descriptor() Descriptor
}
