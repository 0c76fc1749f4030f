package layer

// Field is one named header value rendered for display.
type Field struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Node is the read-only description of one layer and, through Payload, of
// everything it encapsulates.
type Node struct {
	Name    string  `yaml:"layer" json:"layer"`
	Fields  []Field `yaml:"fields" json:"fields"`
	Payload *Node   `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Describe walks the chain rooted at l. It does not serialize, so computed
// fields show whatever the last Serialize or Decode left in them.
func Describe(l Layer) *Node {
	if l == nil {
		return nil
	}
	return &Node{
		Name:    l.Kind().String(),
		Fields:  l.fields(),
		Payload: Describe(l.Payload()),
	}
}
