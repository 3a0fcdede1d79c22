package model

// Category represents a spending or income category. Categories form a
// tree via ParentID; the tree must stay acyclic.
type Category struct {
	Envelope
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}
