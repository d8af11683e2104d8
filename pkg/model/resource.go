package model

// Resource kinds known to the coordinator.
const (
	ResourceSerial = "serial"
	ResourceTCP    = "tcp"
	ResourcePower  = "power"
)

// ResourceKey identifies one exclusive physical resource, e.g.
// ("serial", "/dev/ttyUSB0") or ("power", "10.0.0.5:5025:1").
// Two keys name the same resource iff both fields match exactly.
// The zero value is not a valid key.
type ResourceKey struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// String returns the key in "kind:id" form.
func (k ResourceKey) String() string {
	return k.Kind + ":" + k.ID
}
